// Package validator checks packages against the allowlist, the GitHub star
// threshold and the publish recency window.
//
// Lookups are fail-closed: when GitHub or the registry cannot be reached
// the package is assessed as having zero stars and an epoch publish time.
package validator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/pkggate/internal/config"
	"github.com/git-pkgs/pkggate/internal/core"
)

// DefaultRepoSource is the repository source used when none is supplied.
const DefaultRepoSource = "github"

// CheckKind identifies which check produced a violation.
type CheckKind string

const (
	CheckAllowlist CheckKind = "allowlist"
	CheckStars     CheckKind = "stars"
	CheckRecency   CheckKind = "recency"
)

// Violation is one reason a package failed.
type Violation struct {
	Check   CheckKind `json:"check" yaml:"check"`
	Message string    `json:"message" yaml:"message"`
}

// Messages returns the human-readable text of each violation, in order.
func Messages(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Message
	}
	return out
}

// Validator holds the configuration and stats sources for a run. It is safe
// for concurrent use once constructed.
type Validator struct {
	cfg         *config.Config
	client      *core.Client
	registries  map[string]core.Registry
	regMu       sync.Mutex
	repo        core.RepoSource
	log         *zap.SugaredLogger
	now         func() time.Time
	concurrency int
	stdout      io.Writer
	stderr      io.Writer
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger. The default discards log output.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}

// WithClient sets the HTTP client used for sources created by the validator.
func WithClient(c *core.Client) Option {
	return func(v *Validator) {
		v.client = c
	}
}

// WithRegistry supplies the registry for its ecosystem.
func WithRegistry(r core.Registry) Option {
	return func(v *Validator) {
		v.registries[r.Ecosystem()] = r
	}
}

// WithRepoSource supplies the repository source used for star counts.
func WithRepoSource(s core.RepoSource) Option {
	return func(v *Validator) {
		v.repo = s
	}
}

// WithClock overrides the time source used to compute the recency cutoff.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithOutput sets where WriteReport writes. Passing reports go to stdout
// and failing text reports to stderr. Nil writers discard the report.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(v *Validator) {
		v.stdout = stdout
		v.stderr = stderr
	}
}

// WithConcurrency sets how many packages are validated at once. Values
// below 2 keep validation sequential.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		v.concurrency = n
	}
}

// New creates a validator for cfg. When no repository source is supplied
// the registered "github" source is used with its default URL.
func New(cfg *config.Config, opts ...Option) (*Validator, error) {
	if cfg == nil || cfg.Rules == nil || cfg.Allowlist == nil {
		return nil, fmt.Errorf("validator: incomplete configuration")
	}

	v := &Validator{
		cfg:         cfg,
		registries:  make(map[string]core.Registry),
		log:         zap.NewNop().Sugar(),
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.client == nil {
		v.client = core.DefaultClient()
	}

	if v.repo == nil {
		src, err := core.NewRepoSource(DefaultRepoSource, "", v.client)
		if err != nil {
			return nil, fmt.Errorf("validator: %w", err)
		}
		v.repo = src
	}
	return v, nil
}

// ParseRefs parses package arguments and checks that a registry is
// available for each ecosystem.
func (v *Validator) ParseRefs(args []string) ([]core.PackageRef, error) {
	refs := make([]core.PackageRef, 0, len(args))
	for _, arg := range args {
		ref, err := core.ParsePackageRef(arg)
		if err != nil {
			return nil, err
		}
		if _, err := v.registry(ref.Ecosystem); err != nil {
			return nil, fmt.Errorf("%s: unsupported ecosystem %q", arg, ref.Ecosystem)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ValidatePackage runs the allowlist, star and recency checks for one
// package. All three always run. An empty result means the package passed.
func (v *Validator) ValidatePackage(ctx context.Context, ref core.PackageRef) []Violation {
	reg, err := v.registry(ref.Ecosystem)
	if err != nil {
		v.log.Warnw("no registry for ecosystem", "package", ref.Name, "ecosystem", ref.Ecosystem, "error", err)
	}
	return v.check(ctx, ref, reg, v.log).Violations
}

// ValidatePackages validates bare names or PURLs. Arguments that cannot be
// parsed are taken as npm names, which fail closed.
func (v *Validator) ValidatePackages(ctx context.Context, names []string) *Report {
	refs := make([]core.PackageRef, len(names))
	for i, name := range names {
		ref, err := core.ParsePackageRef(name)
		if err != nil {
			ref = core.PackageRef{Ecosystem: core.DefaultEcosystem, Name: name}
		}
		refs[i] = ref
	}
	return v.ValidateRefs(ctx, refs)
}

// ValidateRefs validates every package and collects the failing ones in
// input order. An empty batch fails without any lookups.
func (v *Validator) ValidateRefs(ctx context.Context, refs []core.PackageRef) *Report {
	runID := uuid.NewString()
	if len(refs) == 0 {
		v.log.Infow("No packages to validate", "run_id", runID)
		return &Report{RunID: runID, Passed: false, Failures: []PackageResult{}}
	}

	log := v.log.With("run_id", runID)
	log.Infof("Validating %d package(s)", len(refs))

	regs := make([]core.Registry, len(refs))
	for i, ref := range refs {
		reg, err := v.registry(ref.Ecosystem)
		if err != nil {
			log.Warnw("no registry for ecosystem", "package", ref.Name, "ecosystem", ref.Ecosystem, "error", err)
		}
		regs[i] = reg
	}

	results := make([]PackageResult, len(refs))
	if v.concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(v.concurrency)
		for i := range refs {
			g.Go(func() error {
				results[i] = v.check(ctx, refs[i], regs[i], log)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range refs {
			results[i] = v.check(ctx, refs[i], regs[i], log)
		}
	}

	report := &Report{RunID: runID, Passed: true, Checked: len(refs), Failures: []PackageResult{}}
	for _, r := range results {
		if len(r.Violations) > 0 {
			report.Passed = false
			report.Failures = append(report.Failures, r)
		}
	}
	return report
}

// WriteReport renders r to the validator's output. Text reports that
// failed go to stderr; everything else goes to stdout.
func (v *Validator) WriteReport(r *Report, format Format) error {
	out := v.stdout
	if (format == FormatText || format == "") && !r.Passed {
		out = v.stderr
	}
	if out == nil {
		return nil
	}
	return r.Render(out, format)
}

// registry returns the registry for ecosystem, creating it from the
// registered factory with the validator's client when none was supplied.
func (v *Validator) registry(ecosystem string) (core.Registry, error) {
	v.regMu.Lock()
	defer v.regMu.Unlock()
	if reg, ok := v.registries[ecosystem]; ok {
		return reg, nil
	}
	reg, err := core.New(ecosystem, "", v.client)
	if err != nil {
		return nil, err
	}
	v.registries[ecosystem] = reg
	return reg, nil
}

// check runs the three checks. A nil registry is treated as a failed lookup.
func (v *Validator) check(ctx context.Context, ref core.PackageRef, reg core.Registry, log *zap.SugaredLogger) PackageResult {
	log.Infow("validating package", "package", ref.Name, "ecosystem", ref.Ecosystem)

	res := PackageResult{Package: ref.Name, Ecosystem: ref.Ecosystem}

	if !v.cfg.Allowlist.Contains(ref.Ecosystem, ref.Name) {
		res.add(CheckAllowlist, fmt.Sprintf("Package '%s' is not in the allowlist", ref.Name))
	}

	repo := core.LookupRepoStats(ctx, v.repo, ref.Name, log)
	res.Stars = repo.Stars
	minStars := v.cfg.MinStars()
	if repo.Stars < minStars {
		res.add(CheckStars, fmt.Sprintf("Package has fewer than %d GitHub stars (%d)", minStars, repo.Stars))
	}

	publish := core.ZeroPublishStats()
	if reg != nil {
		publish = core.LookupPublishStats(ctx, reg, ref.Name, log)
		res.URLs = core.BuildURLs(reg.URLs(), ref.Name, publish.Version)
	}
	res.Version = publish.Version
	res.LastUpdate = publish.LastUpdate

	cutoff, window := v.cutoff()
	if publish.LastUpdate.Before(cutoff) {
		res.add(CheckRecency, fmt.Sprintf("Package hasn't been updated in %s (Last update: %s)",
			window, FormatTimestamp(publish.LastUpdate)))
	}

	return res
}

// cutoff returns the oldest acceptable publish time and its description.
func (v *Validator) cutoff() (time.Time, string) {
	now := v.now()
	if days := v.cfg.MaxPublishAgeDays(); days > 0 {
		return now.AddDate(0, 0, -days), fmt.Sprintf("over %d days", days)
	}
	return now.AddDate(-1, 0, 0), "over a year"
}

// FormatTimestamp renders t as ISO-8601 UTC with millisecond precision,
// e.g. 1970-01-01T00:00:00.000Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

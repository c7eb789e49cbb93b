// Package pkggate gates dependency additions on three checks: the package
// is on an allowlist, its GitHub repository has enough stars, and it has
// been published to its registry recently.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/pkggate"
//	)
//
//	cfg, err := pkggate.LoadConfig("cursor.rules.json", "allowed-packages.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	v, err := pkggate.NewValidator(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if !pkggate.ValidatePackages(context.Background(), v, []string{"axios"}) {
//		os.Exit(1)
//	}
//
// Lookups fail closed: when GitHub or npm cannot be reached the package is
// treated as having zero stars and no recent publish.
package pkggate

import (
	"context"
	"os"

	"github.com/git-pkgs/purl"
	"go.uber.org/zap"

	_ "github.com/git-pkgs/pkggate/all"
	"github.com/git-pkgs/pkggate/client"
	"github.com/git-pkgs/pkggate/internal/config"
	"github.com/git-pkgs/pkggate/internal/core"
	"github.com/git-pkgs/pkggate/internal/logger"
	"github.com/git-pkgs/pkggate/internal/validator"
)

// Re-export types from internal packages
type (
	// Config holds the rule set and allowlist of one run.
	Config = config.Config

	// ConfigLoadError reports a missing or invalid configuration document.
	ConfigLoadError = config.ConfigLoadError

	// Validator runs the allowlist, star and recency checks.
	Validator = validator.Validator

	// ValidatorOption configures a Validator.
	ValidatorOption = validator.Option

	// Report is the outcome of a batch validation.
	Report = validator.Report

	// PackageResult lists the violations of one failing package.
	PackageResult = validator.PackageResult

	// Violation is one reason a package failed.
	Violation = validator.Violation

	// PackageRef identifies a package by ecosystem and name.
	PackageRef = core.PackageRef

	// Registry is the interface implemented by package registry clients.
	Registry = core.Registry

	// RepoSource is the interface implemented by repository search clients.
	RepoSource = core.RepoSource
)

// Re-export types from client
type (
	// Client is the HTTP client shared by the stats sources.
	Client = client.Client

	// Option configures a Client.
	Option = client.Option

	HTTPError      = client.HTTPError
	NotFoundError  = client.NotFoundError
	RateLimitError = client.RateLimitError
)

// Re-export errors
var (
	ErrNotFound     = client.ErrNotFound
	ErrUpstreamDown = client.ErrUpstreamDown
)

// Validator options
var (
	WithLogger      = validator.WithLogger
	WithClient      = validator.WithClient
	WithRegistry    = validator.WithRegistry
	WithRepoSource  = validator.WithRepoSource
	WithClock       = validator.WithClock
	WithConcurrency = validator.WithConcurrency
	WithOutput      = validator.WithOutput
)

// Client options
var (
	WithTimeout        = client.WithTimeout
	WithMaxRetries     = client.WithMaxRetries
	WithAuthFunc       = client.WithAuthFunc
	WithCircuitBreaker = client.WithCircuitBreaker
)

// LoadConfig reads the rule document and the allowlist. Either document
// may be JSON or YAML. Failures are returned as *ConfigLoadError.
func LoadConfig(rulesPath, allowlistPath string) (*Config, error) {
	return config.Load(rulesPath, allowlistPath)
}

// DefaultConfigPaths returns the rule and allowlist paths next to the
// running executable.
func DefaultConfigPaths() (rulesPath, allowlistPath string) {
	return config.DefaultPaths()
}

// NewValidator creates a validator for cfg. Without options it queries the
// public GitHub API and npm registry with DefaultClient, logs at info level
// to stderr, and writes reports to stdout and stderr. WithLogger and
// WithOutput replace those defaults; WithOutput(nil, nil) silences reports.
func NewValidator(cfg *Config, opts ...ValidatorOption) (*Validator, error) {
	defaults := []ValidatorOption{validator.WithOutput(os.Stdout, os.Stderr)}
	if l, err := logger.New(nil, "info", logger.FormatConsole); err == nil {
		defaults = append(defaults, validator.WithLogger(l.Sugar()))
	} else {
		defaults = append(defaults, validator.WithLogger(zap.NewNop().Sugar()))
	}
	return validator.New(cfg, append(defaults, opts...)...)
}

// ValidatePackages validates names with v, writes the text report to the
// validator's output and reports whether every package passed. An empty
// list never passes.
func ValidatePackages(ctx context.Context, v *Validator, names []string) bool {
	report := v.ValidatePackages(ctx, names)
	_ = v.WriteReport(report, validator.FormatText)
	return report.Passed
}

// DefaultClient returns a client with a 30s timeout and no retries.
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// NewRegistry creates a registry client for ecosystem. If baseURL is empty
// the public registry is used.
func NewRegistry(ecosystem, baseURL string, c *Client) (Registry, error) {
	return core.New(ecosystem, baseURL, c)
}

// NewRepoSource creates a repository source such as "github". If baseURL
// is empty the public API is used.
func NewRepoSource(name, baseURL string, c *Client) (RepoSource, error) {
	return core.NewRepoSource(name, baseURL, c)
}

// SupportedEcosystems returns all registered ecosystem types.
func SupportedEcosystems() []string {
	return core.SupportedEcosystems()
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:npm/axios) and version PURLs (pkg:npm/axios@1.7.0).
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// ParsePackageRef parses a bare npm package name or a PURL.
func ParsePackageRef(arg string) (PackageRef, error) {
	return core.ParsePackageRef(arg)
}

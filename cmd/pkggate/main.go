// Command pkggate validates npm packages against an allowlist, a GitHub
// star threshold and a publish recency window. It exits 0 when every
// package passes and 1 otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/git-pkgs/pkggate"
	"github.com/git-pkgs/pkggate/client"
	"github.com/git-pkgs/pkggate/internal/config"
	"github.com/git-pkgs/pkggate/internal/core"
	"github.com/git-pkgs/pkggate/internal/github"
	"github.com/git-pkgs/pkggate/internal/logger"
	"github.com/git-pkgs/pkggate/internal/validator"
)

// errFailed signals exit status 1 after the cause has already been reported.
var errFailed = errors.New("validation failed")

type options struct {
	rulesPath      string
	allowlistPath  string
	githubToken    string
	githubURL      string
	npmURL         string
	timeout        time.Duration
	retries        int
	circuitBreaker int64
	concurrency    int
	output         string
	logLevel       string
	logFormat      string
}

// envFallbacks maps flags to the environment variables that set them when
// the flag is not given.
var envFallbacks = map[string]string{
	"rules":        "PKGGATE_RULES",
	"allowlist":    "PKGGATE_ALLOWLIST",
	"github-token": "GITHUB_TOKEN",
	"log-level":    "PKGGATE_LOG_LEVEL",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(stderr, "❌ %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	defaultRules, defaultAllowlist := pkggate.DefaultConfigPaths()

	rootCmd := &cobra.Command{
		Use:   "pkggate [flags] <package>...",
		Short: "Gate new dependencies on allowlist, GitHub stars and publish recency",
		Long: `pkggate checks each package against three rules: it must be on the
allowlist, its GitHub repository must have at least minStars stars, and its
latest version must have been published recently. Lookups that fail count
as zero stars and no recent publish.

Passing text reports go to stdout and failing ones to stderr. JSON and YAML
reports always go to stdout. With no packages nothing is reported in any
format and the exit status is 1.`,
		Example: `  pkggate axios lodash
  pkggate pkg:npm/%40babel/core
  pkggate --output json --concurrency 4 react react-dom`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnvFallbacks(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, args, stdout, stderr)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.rulesPath, "rules", defaultRules, "Path to the rule document (JSON or YAML)")
	flags.StringVar(&opts.allowlistPath, "allowlist", defaultAllowlist, "Path to the allowlist document (JSON or YAML)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", string(logger.FormatConsole), "Log format: console or json")

	local := rootCmd.Flags()
	local.StringVar(&opts.githubToken, "github-token", "", "GitHub token for the search API")
	local.StringVar(&opts.githubURL, "github-url", github.DefaultURL, "GitHub API base URL")
	local.StringVar(&opts.npmURL, "npm-url", "", "npm registry base URL")
	local.DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	local.IntVar(&opts.retries, "retries", 0, "Retries for rate limited or 5xx responses")
	local.Int64Var(&opts.circuitBreaker, "circuit-breaker", 0, "Consecutive upstream failures before a host is skipped (0 disables)")
	local.IntVar(&opts.concurrency, "concurrency", 1, "Packages validated in parallel")
	local.StringVarP(&opts.output, "output", "o", string(validator.FormatText), "Report format: text, json or yaml")

	rootCmd.AddCommand(newValidateConfigCmd(opts, stdout, stderr))
	return rootCmd
}

func newValidateConfigCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and schema-check the rule document and allowlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, done, err := logger.Setup(stderr, opts.logLevel, logger.Format(opts.logFormat))
			if err != nil {
				return err
			}
			defer done()

			cfg, err := pkggate.LoadConfig(opts.rulesPath, opts.allowlistPath)
			if err != nil {
				log.Errorw("Error reading rules or allowlist", "error", err)
				return errFailed
			}

			fmt.Fprintf(stdout, "Rules:     %s (%d rules, minStars=%d", opts.rulesPath, len(cfg.Rules.Rules), cfg.MinStars())
			if days := cfg.MaxPublishAgeDays(); days > 0 {
				fmt.Fprintf(stdout, ", maxPublishAgeDays=%d", days)
			}
			fmt.Fprintln(stdout, ")")
			fmt.Fprintf(stdout, "Allowlist: %s (%d npm packages)\n", opts.allowlistPath, cfg.Allowlist.Len(core.DefaultEcosystem))
			return nil
		},
	}
}

func runValidate(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) error {
	format, err := validator.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	log, done, err := logger.Setup(stderr, opts.logLevel, logger.Format(opts.logFormat))
	if err != nil {
		return err
	}
	defer done()

	cfg, err := pkggate.LoadConfig(opts.rulesPath, opts.allowlistPath)
	if err != nil {
		log.Errorw("Error reading rules or allowlist", "error", err)
		return errFailed
	}

	c := newClient(opts)
	v, err := newValidator(cfg, c, opts, log, stdout, stderr)
	if err != nil {
		return err
	}

	refs, err := v.ParseRefs(args)
	if err != nil {
		log.Errorw("Invalid package argument", "error", err)
		return errFailed
	}

	report := v.ValidateRefs(ctx, refs)
	if states := c.BreakerStates(); len(states) > 0 {
		log.Debugw("circuit breaker states", "states", states)
	}

	if err := v.WriteReport(report, format); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if !report.Passed {
		return errFailed
	}
	return nil
}

func newClient(opts *options) *client.Client {
	clientOpts := []client.Option{
		client.WithTimeout(opts.timeout),
		client.WithMaxRetries(opts.retries),
	}
	if opts.circuitBreaker > 0 {
		clientOpts = append(clientOpts, client.WithCircuitBreaker(opts.circuitBreaker))
	}
	if opts.githubToken != "" {
		clientOpts = append(clientOpts, client.WithAuthFunc(github.TokenAuth(opts.githubURL, opts.githubToken)))
	}
	return client.NewClient(clientOpts...)
}

func newValidator(cfg *config.Config, c *client.Client, opts *options, log *zap.SugaredLogger, stdout, stderr io.Writer) (*validator.Validator, error) {
	reg, err := core.New(core.DefaultEcosystem, opts.npmURL, c)
	if err != nil {
		return nil, err
	}
	src, err := core.NewRepoSource(validator.DefaultRepoSource, opts.githubURL, c)
	if err != nil {
		return nil, err
	}
	return pkggate.NewValidator(cfg,
		pkggate.WithClient(c),
		pkggate.WithRegistry(reg),
		pkggate.WithRepoSource(src),
		pkggate.WithLogger(log),
		pkggate.WithConcurrency(opts.concurrency),
		pkggate.WithOutput(stdout, stderr),
	)
}

// applyEnvFallbacks sets unset flags from their environment variables.
func applyEnvFallbacks(fs *pflag.FlagSet) error {
	for name, env := range envFallbacks {
		f := fs.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		if val, ok := os.LookupEnv(env); ok && val != "" {
			if err := fs.Set(name, val); err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
		}
	}
	return nil
}

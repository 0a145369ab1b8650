package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// errCategoriesFailed makes the process exit non-zero after a crawl in which
// at least one category produced nothing.
var errCategoriesFailed = errors.New("one or more categories failed")

// NewRootCmd creates the crawl command and its subcommands.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl a category-organized book catalog",
		Long: `crawler discovers every category on the catalog's home page, walks each
category's listing pages and writes one record per book to a per-category
file. Cover images are stored under <output>/images/<category>/<upc>.jpg.

Settings are read from defaults, then .crawler.yaml (current or home
directory, or --config), then CRAWLER_* environment variables, then flags.

Examples:
  # Crawl everything into ./output
  crawler

  # Crawl two categories without images into SQLite
  crawler --categories Poetry,Travel --images=false --format sqlite`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawlCmd,
	}

	flags := cmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.StringP("config", "c", "", "Settings file (default: .crawler.yaml in current or home directory)")
	flags.String("base-url", defaults.BaseURL, "Catalog root URL")
	flags.StringSlice("categories", nil, "Only crawl these categories (case-insensitive)")
	flags.Int("pages", defaults.MaxPages, "Maximum listing pages per category (0 for no cap)")
	flags.Int("concurrency", defaults.Concurrency, "Categories crawled in parallel")
	flags.Int("book-workers", defaults.BookWorkers, "Detail pages fetched in parallel per category")
	flags.Int("image-workers", defaults.ImageWorkers, "Concurrent image downloads")
	flags.Int("parallel", defaults.Parallelism, "Maximum in-flight requests")
	flags.Duration("delay", defaults.Delay, "Delay between requests")
	flags.Duration("random-delay", defaults.RandomDelay, "Random jitter added to the delay")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.Int("max-retries", defaults.MaxRetries, "Retries for transient failures")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	flags.Duration("retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	flags.Bool("images", defaults.FetchImages, "Download cover images")
	flags.StringP("output", "o", defaults.OutputRoot, "Output root directory")
	flags.StringP("format", "f", defaults.OutputFormat, "Output format: csv, json, dual, or sqlite")
	flags.Bool("report", defaults.WriteReport, "Write a markdown report to <output>/report.md")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header")
	flags.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	cmd.AddCommand(newCategoriesCmd())
	cmd.AddCommand(newBooksCmd())

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig layers defaults, the settings file, the environment and
// explicitly set flags, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.DefaultConfig()

	configPath, _ := flags.GetString("config")
	if path := config.FindConfigFile(configPath); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		file.Apply(cfg)
	} else if configPath != "" {
		return nil, fmt.Errorf("%s: %w", configPath, config.ErrConfigNotFound)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			errs = append(errs, err)
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	duration := func(name string, dst *time.Duration) {
		if flags.Changed(name) {
			v, err := flags.GetDuration(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			v, err := flags.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("base-url", &cfg.BaseURL)
	str("output", &cfg.OutputRoot)
	str("format", &cfg.OutputFormat)
	str("user-agent", &cfg.UserAgent)
	str("metrics-addr", &cfg.MetricsAddr)
	integer("pages", &cfg.MaxPages)
	integer("concurrency", &cfg.Concurrency)
	integer("book-workers", &cfg.BookWorkers)
	integer("image-workers", &cfg.ImageWorkers)
	integer("parallel", &cfg.Parallelism)
	integer("max-retries", &cfg.MaxRetries)
	duration("delay", &cfg.Delay)
	duration("random-delay", &cfg.RandomDelay)
	duration("timeout", &cfg.Timeout)
	duration("retry-backoff", &cfg.RetryBackoff)
	duration("retry-backoff-max", &cfg.RetryBackoffMax)
	boolean("images", &cfg.FetchImages)
	boolean("report", &cfg.WriteReport)
	boolean("respect-robots", &cfg.RespectRobotsTxt)
	boolean("verbose", &cfg.Verbose)

	if flags.Changed("categories") {
		v, err := flags.GetStringSlice("categories")
		errs = append(errs, err)
		cfg.Categories = v
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	return errors.Join(errs...)
}

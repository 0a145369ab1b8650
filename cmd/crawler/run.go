package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/report"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, flushing what was crawled")
	}()

	result, err := runCrawl(ctx, cfg, nil)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), result, cfg)
	if len(result.FailedCategories()) > 0 {
		return errCategoriesFailed
	}
	return nil
}

// runCrawl crawls with cfg and writes the outputs. A nil transport uses the
// network.
func runCrawl(ctx context.Context, cfg *config.Config, transport http.RoundTripper) (*models.CrawlResult, error) {
	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.String("output_root", cfg.OutputRoot),
		slog.String("format", cfg.OutputFormat),
		slog.Int("concurrency", cfg.Concurrency),
	)

	sinks, err := pipeline.OpenSinks(cfg)
	if err != nil {
		return nil, fmt.Errorf("open outputs: %w", err)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			slog.Error("close outputs", slog.Any("error", err))
		}
	}()

	c, err := scraper.NewCrawler(cfg, sinks.ForCategory)
	if err != nil {
		return nil, fmt.Errorf("initialising crawler: %w", err)
	}
	if transport != nil {
		c.WithTransport(transport)
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, c.Metrics)
	defer stopMetricsServer(metricsServer)

	result, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.WriteReport {
		if err := writeReport(cfg.ReportPath(), result); err != nil {
			slog.Error("writing report failed", slog.Any("error", err))
		}
	}
	return result, nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func writeReport(path string, result *models.CrawlResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteMarkdown(f, result); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return f.Close()
}

func printSummary(w io.Writer, result *models.CrawlResult, cfg *config.Config) {
	duration := result.EndTime.Sub(result.StartTime)
	records := result.TotalRecords()
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(records) / duration.Seconds()
	}

	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Crawl complete")
	fmt.Fprintf(w, "  Categories:    %d\n", len(result.Categories))
	fmt.Fprintf(w, "  Failed:        %d\n", len(result.FailedCategories()))
	fmt.Fprintf(w, "  Records:       %d\n", records)
	fmt.Fprintf(w, "  Failed URLs:   %d\n", len(result.AllFailures()))
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Records/sec:   %.2f\n", recordsPerSec)
	fmt.Fprintf(w, "  Output root:   %s\n", cfg.OutputRoot)
	for _, c := range result.FailedCategories() {
		fmt.Fprintf(w, "  FAILED %s: %v\n", c.Target.Name, c.Err)
	}
	fmt.Fprintln(w, separator)
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories found on the catalog root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			logger, _ := newLogger(cfg.Verbose)
			slog.SetDefault(logger)

			targets, err := listCategories(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			for _, target := range targets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", target.Name, target.URL)
			}
			return nil
		},
	}
}

func listCategories(ctx context.Context, cfg *config.Config, transport http.RoundTripper) ([]models.CrawlTarget, error) {
	noSinks := func(models.CrawlTarget) (pipeline.OutputWriter, error) {
		return nil, errors.New("listing only")
	}
	c, err := scraper.NewCrawler(cfg, noSinks)
	if err != nil {
		return nil, err
	}
	if transport != nil {
		c.WithTransport(transport)
	}
	return c.Discover(ctx)
}

func newBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "books [category...]",
		Short: "Print books stored by a sqlite-format crawl",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			return printStoredBooks(cmd.Context(), cmd.OutOrStdout(), cfg.DatabasePath(), args)
		},
	}
}

func printStoredBooks(ctx context.Context, w io.Writer, dbPath string, categories []string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no database at %s: %w", dbPath, err)
	}
	store, err := pipeline.OpenSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, category := range categories {
		books, err := store.BooksByCategory(ctx, category)
		if err != nil {
			return fmt.Errorf("%s: %w", store.Path(), err)
		}
		fmt.Fprintf(w, "%s (%d)\n", category, len(books))
		for _, b := range books {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d\n", b.UPC, b.Title, b.PriceInclTax, b.AvailableCount)
		}
	}
	return nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

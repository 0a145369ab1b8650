package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Output formats understood by the record sinks.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatDual   = "dual"
	FormatSQLite = "sqlite"
)

// Config holds crawler configuration.
type Config struct {
	BaseURL    string
	Categories []string // empty means every category
	MaxPages   int      // per category, 0 for no cap

	Concurrency  int // categories crawled in parallel
	BookWorkers  int // detail pages fetched in parallel within a category
	ImageWorkers int // concurrent image downloads
	Parallelism  int // global in-flight request cap
	Delay        time.Duration
	RandomDelay  time.Duration

	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	FetchImages  bool
	OutputRoot   string
	OutputFormat string // csv, json, dual or sqlite
	WriteReport  bool

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://books.toscrape.com/",
		MaxPages:           100,
		Concurrency:        4,
		BookWorkers:        8,
		ImageWorkers:       4,
		Parallelism:        16,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            10 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		FetchImages:        true,
		OutputRoot:         "output",
		OutputFormat:       FormatCSV,
		WriteReport:        true,
		PipelineBufferSize: 128,
		BatchSize:          32,
		DedupeMaxSize:      10000,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		RespectRobotsTxt:   false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.BookWorkers <= 0 {
		return fmt.Errorf("book workers must be positive")
	}
	if c.ImageWorkers <= 0 {
		return fmt.Errorf("image workers must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("output root cannot be empty")
	}
	switch c.OutputFormat {
	case FormatCSV, FormatJSON, FormatDual, FormatSQLite:
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// CSVDir is where per-category tabular files are written.
func (c *Config) CSVDir() string {
	return filepath.Join(c.OutputRoot, "csv")
}

// JSONDir is where per-category JSONL files are written.
func (c *Config) JSONDir() string {
	return filepath.Join(c.OutputRoot, "json")
}

// ImagesDir is the root of the cover image cache.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.OutputRoot, "images")
}

// DatabasePath is the SQLite file used by the sqlite output format.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.OutputRoot, "books.db")
}

// ReportPath is the markdown crawl report.
func (c *Config) ReportPath() string {
	return filepath.Join(c.OutputRoot, "report.md")
}

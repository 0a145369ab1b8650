package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero concurrency",
			mutate: func(cfg *Config) {
				cfg.Concurrency = 0
			},
			wantErr: "concurrency",
		},
		{
			name: "negative book workers",
			mutate: func(cfg *Config) {
				cfg.BookWorkers = -1
			},
			wantErr: "book workers",
		},
		{
			name: "negative max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = -1
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 3 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "empty output root",
			mutate: func(cfg *Config) {
				cfg.OutputRoot = ""
			},
			wantErr: "output root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	cfg.MaxPages = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero max pages means no cap, got %v", err)
	}
}

func TestOutputPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputRoot = "out"
	if got := cfg.CSVDir(); got != filepath.Join("out", "csv") {
		t.Fatalf("csv dir = %q", got)
	}
	if got := cfg.ImagesDir(); got != filepath.Join("out", "images") {
		t.Fatalf("images dir = %q", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CRAWLER_CONCURRENCY", "3")
	t.Setenv("CRAWLER_TIMEOUT_MS", "1500")
	t.Setenv("CRAWLER_FETCH_IMAGES", "false")
	t.Setenv("CRAWLER_CATEGORIES", "Poetry, Travel ,")
	t.Setenv("CRAWLER_FORMAT", "JSON")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Concurrency != 3 {
		t.Fatalf("concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.Timeout != 1500*time.Millisecond {
		t.Fatalf("timeout = %v, want 1.5s", cfg.Timeout)
	}
	if cfg.FetchImages {
		t.Fatalf("fetch images should be disabled")
	}
	if len(cfg.Categories) != 2 || cfg.Categories[0] != "Poetry" || cfg.Categories[1] != "Travel" {
		t.Fatalf("categories = %v", cfg.Categories)
	}
	if cfg.OutputFormat != FormatJSON {
		t.Fatalf("format = %q", cfg.OutputFormat)
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("CRAWLER_BOOK_WORKERS", "many")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "CRAWLER_BOOK_WORKERS") {
		t.Fatalf("expected error naming the variable, got %v", err)
	}
}

func TestLoadFileApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	content := `
base_url: http://example.test/
concurrency: 2
timeout_ms: 2500
fetch_images: false
output_root: /tmp/books
categories:
  - Poetry
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}

	cfg := DefaultConfig()
	f.Apply(cfg)

	if cfg.BaseURL != "http://example.test/" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.Concurrency != 2 {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.Timeout != 2500*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.Timeout)
	}
	if cfg.FetchImages {
		t.Fatalf("fetch images should be false")
	}
	if cfg.OutputRoot != "/tmp/books" {
		t.Fatalf("output root = %q", cfg.OutputRoot)
	}
	if cfg.BookWorkers != DefaultConfig().BookWorkers {
		t.Fatalf("unset fields must keep defaults, book workers = %d", cfg.BookWorkers)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestFindConfigFileExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 1\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if got := FindConfigFile(path); got != path {
		t.Fatalf("FindConfigFile = %q, want %q", got, path)
	}
	if got := FindConfigFile(path + ".missing"); got != "" {
		t.Fatalf("missing explicit path should return empty, got %q", got)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the settings file looked up when no path is given.
const DefaultConfigFile = ".crawler.yaml"

// ErrConfigNotFound is returned when the settings file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the on-disk settings record. Pointer fields distinguish "unset"
// from zero values so a file only overrides what it names.
type File struct {
	BaseURL          *string  `yaml:"base_url"`
	Categories       []string `yaml:"categories"`
	MaxPages         *int     `yaml:"max_pages"`
	Concurrency      *int     `yaml:"concurrency"`
	BookWorkers      *int     `yaml:"book_workers"`
	ImageWorkers     *int     `yaml:"image_workers"`
	Parallelism      *int     `yaml:"parallelism"`
	DelayMs          *int     `yaml:"delay_ms"`
	TimeoutMs        *int     `yaml:"timeout_ms"`
	MaxRetries       *int     `yaml:"max_retries"`
	FetchImages      *bool    `yaml:"fetch_images"`
	OutputRoot       *string  `yaml:"output_root"`
	OutputFormat     *string  `yaml:"output_format"`
	WriteReport      *bool    `yaml:"write_report"`
	UserAgent        *string  `yaml:"user_agent"`
	RespectRobotsTxt *bool    `yaml:"respect_robots_txt"`
	MetricsAddr      *string  `yaml:"metrics_addr"`
}

// LoadFile reads a YAML settings file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// FindConfigFile returns configPath when it exists, otherwise the first
// DefaultConfigFile found in the working directory or the home directory.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Apply copies every field set in f onto c.
func (f *File) Apply(c *Config) {
	if f == nil {
		return
	}
	setString(&c.BaseURL, f.BaseURL)
	setString(&c.OutputRoot, f.OutputRoot)
	setString(&c.UserAgent, f.UserAgent)
	setString(&c.MetricsAddr, f.MetricsAddr)
	if f.OutputFormat != nil {
		c.OutputFormat = strings.ToLower(strings.TrimSpace(*f.OutputFormat))
	}
	if len(f.Categories) > 0 {
		c.Categories = append([]string(nil), f.Categories...)
	}
	setInt(&c.MaxPages, f.MaxPages)
	setInt(&c.Concurrency, f.Concurrency)
	setInt(&c.BookWorkers, f.BookWorkers)
	setInt(&c.ImageWorkers, f.ImageWorkers)
	setInt(&c.Parallelism, f.Parallelism)
	setInt(&c.MaxRetries, f.MaxRetries)
	if f.DelayMs != nil {
		c.Delay = time.Duration(*f.DelayMs) * time.Millisecond
	}
	if f.TimeoutMs != nil {
		c.Timeout = time.Duration(*f.TimeoutMs) * time.Millisecond
	}
	setBool(&c.FetchImages, f.FetchImages)
	setBool(&c.WriteReport, f.WriteReport)
	setBool(&c.RespectRobotsTxt, f.RespectRobotsTxt)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

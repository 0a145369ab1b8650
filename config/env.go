package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvMillis parses key as a number of milliseconds.
func EnvMillis(key string) (time.Duration, bool, error) {
	value, ok, err := EnvInt(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(value) * time.Millisecond, true, nil
}

// ApplyEnv overrides cfg with CRAWLER_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("CRAWLER_BASE_URL"); ok {
		c.BaseURL = value
	}
	if value, ok := EnvString("CRAWLER_OUTPUT_ROOT"); ok {
		c.OutputRoot = value
	}
	if value, ok := EnvString("CRAWLER_FORMAT"); ok {
		c.OutputFormat = strings.ToLower(value)
	}
	if value, ok := EnvString("CRAWLER_CATEGORIES"); ok {
		c.Categories = splitList(value)
	}
	if value, ok := EnvString("CRAWLER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CRAWLER_CONCURRENCY", &c.Concurrency},
		{"CRAWLER_BOOK_WORKERS", &c.BookWorkers},
		{"CRAWLER_IMAGE_WORKERS", &c.ImageWorkers},
		{"CRAWLER_PARALLEL", &c.Parallelism},
		{"CRAWLER_PAGES", &c.MaxPages},
		{"CRAWLER_MAX_RETRIES", &c.MaxRetries},
	}
	for _, item := range ints {
		value, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}

	if value, ok, err := EnvMillis("CRAWLER_TIMEOUT_MS"); err != nil {
		return err
	} else if ok {
		c.Timeout = value
	}
	if value, ok, err := EnvBool("CRAWLER_FETCH_IMAGES"); err != nil {
		return err
	} else if ok {
		c.FetchImages = value
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

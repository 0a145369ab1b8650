package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func createTestResult() *models.CrawlResult {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.CrawlResult{
		StartTime:    start,
		EndTime:      start.Add(3 * time.Second),
		RequestCount: 12,
		RetryCount:   1,
		ErrorsByType: map[string]int{"not_found": 1, "server": 1},
		Categories: []models.CategoryResult{
			{
				Target:  models.CrawlTarget{Name: "Poetry", URL: "http://example.test/poetry/index.html"},
				Records: 2,
				Pages:   2,
				Images:  2,
				Failures: []models.Failure{
					{URL: "http://example.test/catalogue/missing_2/index.html", Stage: models.StageDetail, Kind: "not_found"},
				},
				Start: start,
				End:   start.Add(time.Second),
			},
			{
				Target:   models.CrawlTarget{Name: "Travel", URL: "http://example.test/travel/index.html"},
				Err:      errors.New("listing page 1: http status 500"),
				Failures: []models.Failure{{URL: "http://example.test/travel/index.html", Stage: models.StageListing, Kind: "server"}},
				Start:    start,
				End:      start.Add(time.Second),
			},
		},
	}
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, createTestResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	tests := []struct {
		name string
		want string
	}{
		{name: "title", want: "# Catalog Crawl Report"},
		{name: "category section", want: "## Categories"},
		{name: "failure warning", want: "1 of 2 categories produced no records."},
		{name: "error chart", want: "```mermaid"},
		{name: "failed url", want: "http://example.test/catalogue/missing_2/index.html"},
		{name: "early stop", want: "Stopped early"},
	}
	for _, tt := range tests {
		if !strings.Contains(output, tt.want) {
			t.Errorf("%s: output does not contain %q", tt.name, tt.want)
		}
	}
	if !hasRow(output, "Poetry", "partial") {
		t.Error("expected Poetry to be partial")
	}
	if !hasRow(output, "Travel", "failed") {
		t.Error("expected Travel to be failed")
	}
}

// hasRow reports whether a table row carries every cell value.
func hasRow(output string, cells ...string) bool {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		match := true
		for _, cell := range cells {
			if !strings.Contains(line, " "+cell+" ") {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestWriteMarkdownCleanRun(t *testing.T) {
	t.Parallel()

	result := createTestResult()
	result.Categories = result.Categories[:1]
	result.Categories[0].Failures = nil
	result.ErrorsByType = map[string]int{}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !hasRow(output, "Poetry", "ok") {
		t.Error("expected ok status")
	}
	if strings.Contains(output, "## Failures") || strings.Contains(output, "## Errors by Type") {
		t.Error("clean run should not list failures")
	}
}

func TestWriteMarkdownTruncatesFailures(t *testing.T) {
	t.Parallel()

	result := createTestResult()
	var failures []models.Failure
	for i := 0; i < maxFailuresPerCategory+5; i++ {
		failures = append(failures, models.Failure{
			URL:   fmt.Sprintf("http://example.test/catalogue/book_%d/index.html", i),
			Stage: models.StageDetail,
			Kind:  "not_found",
		})
	}
	result.Categories[0].Failures = failures

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "5 more failures omitted.") {
		t.Error("expected truncation note")
	}
}

func TestWriteMarkdownNilResult(t *testing.T) {
	t.Parallel()

	if err := WriteMarkdown(&bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected error")
	}
}

// Package models defines data structures for the crawler.
package models

import (
	"fmt"
	"time"
)

// Book is a single detail page turned into a record. Values are built once
// by the extractor and never mutated afterwards.
type Book struct {
	DetailURL      string `csv:"product_page_url" json:"product_page_url"`
	UPC            string `csv:"universal_product_code (upc)" json:"universal_product_code (upc)"`
	Title          string `csv:"title" json:"title"`
	PriceInclTax   string `csv:"price_including_tax" json:"price_including_tax"`
	PriceExclTax   string `csv:"price_excluding_tax" json:"price_excluding_tax"`
	AvailableCount int    `csv:"number_available" json:"number_available"`
	Description    string `csv:"product_description" json:"product_description"`
	Category       string `csv:"category" json:"category"`
	Rating         int    `csv:"review_rating" json:"review_rating"`
	ImageURL       string `csv:"image_url" json:"image_url"`
}

// CrawlTarget is a category discovered on the site root.
type CrawlTarget struct {
	Name string
	URL  string
}

// AssetKey locates a stored cover image: one directory per crawl category,
// one file per UPC.
type AssetKey struct {
	Category string
	UPC      string
}

func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%s", k.Category, k.UPC)
}

// Stages a failure can be reported from.
const (
	StageListing = "listing"
	StageDetail  = "detail"
	StageImage   = "image"
	StageSink    = "sink"
)

// Failure records a URL that could not be processed and why.
type Failure struct {
	URL   string
	Stage string
	Kind  string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", f.Stage, f.URL, f.Kind, f.Err)
}

// CategoryResult holds the outcome of crawling one category.
type CategoryResult struct {
	Target   CrawlTarget
	Records  int
	Pages    int
	Images   int
	Failures []Failure
	// Rejected counts records the sink pipeline dropped, by reason
	// (invalid_record, duplicate_url).
	Rejected map[string]int
	// Err is set when the category stopped early: a listing page could not be
	// fetched, the sink failed, or the crawl was cancelled.
	Err   error
	Start time.Time
	End   time.Time
}

// Failed reports whether the category produced nothing because of an error.
func (r CategoryResult) Failed() bool {
	return r.Err != nil && r.Records == 0
}

// Category outcome labels.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Status is "failed" for a category that produced nothing, "partial" when it
// stopped early or lost any URL, and "ok" otherwise.
func (r CategoryResult) Status() string {
	switch {
	case r.Failed():
		return StatusFailed
	case r.Err != nil || len(r.Failures) > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	Categories   []CategoryResult
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	RetryCount   int
	ErrorsByType map[string]int
}

// TotalRecords sums the records written across categories.
func (r *CrawlResult) TotalRecords() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Records
	}
	return total
}

// FailedCategories returns the categories that failed entirely.
func (r *CrawlResult) FailedCategories() []CategoryResult {
	var out []CategoryResult
	for _, c := range r.Categories {
		if c.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// AllFailures flattens per-category failures in category order.
func (r *CrawlResult) AllFailures() []Failure {
	var out []Failure
	for _, c := range r.Categories {
		out = append(out, c.Failures...)
	}
	return out
}

// Package scraper crawls a category-organized catalog: it discovers
// categories, walks their listing pages, extracts every book and stores its
// cover image.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"golang.org/x/sync/errgroup"
)

// SinkFactory opens the output writer for one category.
type SinkFactory func(target models.CrawlTarget) (pipeline.OutputWriter, error)

// Crawler drives discovery, pagination, extraction and image storage.
type Crawler struct {
	cfg        *config.Config
	fetcher    *Fetcher
	walker     *PageWalker
	discoverer *CategoryDiscoverer
	images     *ImageFetcher
	sinks      SinkFactory
	Metrics    *Metrics
}

// NewCrawler builds a crawler configured from cfg that writes each category
// through a writer obtained from sinks.
func NewCrawler(cfg *config.Config, sinks SinkFactory) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if sinks == nil {
		return nil, fmt.Errorf("sink factory is required")
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	return &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		walker:     NewPageWalker(fetcher, cfg.MaxPages),
		discoverer: NewCategoryDiscoverer(fetcher, cfg.Categories),
		images:     NewImageFetcher(fetcher, cfg.ImagesDir(), cfg.ImageWorkers),
		sinks:      sinks,
		Metrics:    metrics,
	}, nil
}

// WithTransport replaces the HTTP transport for every request the crawler
// makes.
func (c *Crawler) WithTransport(transport http.RoundTripper) {
	c.fetcher.WithTransport(transport)
}

// Run discovers the categories under the configured base URL and crawls
// them. The error is non-nil only when discovery fails; per-category
// outcomes are in the result.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	targets, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}

	categories := c.CrawlAll(ctx, targets)

	result := &models.CrawlResult{
		Categories:   categories,
		StartTime:    start,
		EndTime:      time.Now(),
		RequestCount: c.fetcher.RequestCount(),
		RetryCount:   c.fetcher.RetryCount(),
		ErrorsByType: make(map[string]int),
	}
	for _, failure := range result.AllFailures() {
		result.ErrorsByType[failure.Kind]++
	}
	return result, nil
}

// Discover returns the categories listed on the configured site root,
// narrowed by the configured filter.
func (c *Crawler) Discover(ctx context.Context) ([]models.CrawlTarget, error) {
	targets, err := c.discoverer.Discover(ctx, c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("discover categories: %w", err)
	}
	slog.Info("categories discovered", slog.Int("count", len(targets)))
	return targets, nil
}

// CrawlAll crawls targets with at most cfg.Concurrency categories in flight.
// Results are returned in target order.
func (c *Crawler) CrawlAll(ctx context.Context, targets []models.CrawlTarget) []models.CategoryResult {
	results := make([]models.CategoryResult, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, target := range targets {
		g.Go(func() error {
			results[i] = c.CrawlCategory(ctx, target)
			// Category failures are reported in the result and never cancel
			// sibling categories.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// CrawlCategory walks one category and writes its records, in discovery
// order, through a writer of its own. Records extracted before a failure
// are always flushed.
func (c *Crawler) CrawlCategory(ctx context.Context, target models.CrawlTarget) models.CategoryResult {
	run := &categoryRun{
		crawler: c,
		target:  target,
		logger:  slog.With(slog.String("category", target.Name)),
		result:  models.CategoryResult{Target: target, Start: time.Now()},
	}
	run.logger.Info("crawling category", slog.String("url", target.URL))

	writer, err := c.sinks(target)
	if err != nil {
		run.result.Err = fmt.Errorf("open sink: %w", err)
		run.addFailure(models.Failure{URL: target.URL, Stage: models.StageSink, Kind: "sink", Err: err})
		return run.finish()
	}

	// The sink outlives cancellation so partial results still reach disk.
	p := pipeline.NewPipeline(context.WithoutCancel(ctx), writer, c.cfg)
	p.Start(1)
	if c.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	run.walk(ctx, p)

	run.images.Wait()

	if err := p.Close(); err != nil {
		if run.result.Err == nil {
			run.result.Err = fmt.Errorf("close sink: %w", err)
		}
		run.addFailure(models.Failure{URL: target.URL, Stage: models.StageSink, Kind: "sink", Err: err})
	}
	run.result.Records = p.Written()
	if rejected, ok := p.GetMetrics()["validation_errors"].(map[string]int); ok && len(rejected) > 0 {
		run.result.Rejected = rejected
	}
	return run.finish()
}

type categoryRun struct {
	crawler *Crawler
	target  models.CrawlTarget
	logger  *slog.Logger

	images errgroup.Group

	mu     sync.Mutex
	result models.CategoryResult
}

func (r *categoryRun) walk(ctx context.Context, p *pipeline.Pipeline) {
	for page, err := range r.crawler.walker.Pages(ctx, r.target.URL) {
		if errors.Is(err, ErrPageCapReached) {
			r.addFailure(models.Failure{URL: page.URL, Stage: models.StageListing, Kind: "page_cap", Err: err})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				r.setErr(ctx.Err())
				return
			}
			r.logger.Error("listing page failed",
				slog.String("url", page.URL),
				slog.Int("page", page.Number),
				slog.Any("error", err),
			)
			r.setErr(fmt.Errorf("listing page %d: %w", page.Number, err))
			r.addFailure(models.Failure{URL: page.URL, Stage: models.StageListing, Kind: errorTypeLabel(err), Err: err})
			return
		}

		r.mu.Lock()
		r.result.Pages++
		r.mu.Unlock()
		r.logger.Debug("listing page",
			slog.Int("page", page.Number),
			slog.Int("books", len(page.Books)),
		)

		books := r.extractPage(ctx, page.Books)
		for _, book := range books {
			if book == nil {
				continue
			}
			if err := p.Process(book); err != nil {
				r.setErr(fmt.Errorf("sink: %w", err))
				r.addFailure(models.Failure{URL: book.DetailURL, Stage: models.StageSink, Kind: "sink", Err: err})
				return
			}
			r.crawler.Metrics.IncRecords()
			r.storeImage(ctx, book)
		}

		if ctx.Err() != nil {
			r.setErr(ctx.Err())
			return
		}
	}
}

// extractPage fetches and extracts the books of one listing page with
// bounded parallelism. The returned slice is in link order; failed books
// are nil.
func (r *categoryRun) extractPage(ctx context.Context, links []string) []*models.Book {
	books := make([]*models.Book, len(links))
	failures := make([]*models.Failure, len(links))

	var g errgroup.Group
	g.SetLimit(r.crawler.cfg.BookWorkers)
	for i, link := range links {
		g.Go(func() error {
			book, err := r.crawler.extractBook(ctx, link)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				failures[i] = &models.Failure{URL: link, Stage: models.StageDetail, Kind: errorTypeLabel(err), Err: err}
				return nil
			}
			books[i] = book
			return nil
		})
	}
	_ = g.Wait()

	for _, failure := range failures {
		if failure == nil {
			continue
		}
		r.logger.Warn("book skipped",
			slog.String("url", failure.URL),
			slog.String("error_type", failure.Kind),
			slog.Any("error", failure.Err),
		)
		r.addFailure(*failure)
	}
	return books
}

func (c *Crawler) extractBook(ctx context.Context, detailURL string) (*models.Book, error) {
	doc, err := c.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	return parser.Extract(doc)
}

// storeImage runs the image stage for book in the background. Its outcome
// never affects the record.
func (r *categoryRun) storeImage(ctx context.Context, book *models.Book) {
	if !r.crawler.cfg.FetchImages {
		return
	}
	key := models.AssetKey{Category: r.target.Name, UPC: book.UPC}
	imageURL := book.ImageURL
	r.images.Go(func() error {
		err := r.crawler.images.FetchAndStore(ctx, imageURL, key)
		if err == nil {
			r.mu.Lock()
			r.result.Images++
			r.mu.Unlock()
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		r.logger.Warn("image not stored",
			slog.String("url", imageURL),
			slog.String("key", key.String()),
			slog.Any("error", err),
		)
		r.addFailure(models.Failure{URL: imageURL, Stage: models.StageImage, Kind: errorTypeLabel(err), Err: err})
		return nil
	})
}

func (r *categoryRun) addFailure(f models.Failure) {
	r.crawler.Metrics.IncFailure(f.Stage, f.Kind)
	r.mu.Lock()
	r.result.Failures = append(r.result.Failures, f)
	r.mu.Unlock()
}

func (r *categoryRun) setErr(err error) {
	r.mu.Lock()
	if r.result.Err == nil {
		r.result.Err = err
	}
	r.mu.Unlock()
}

func (r *categoryRun) finish() models.CategoryResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.result.End = time.Now()
	// Image failures arrive in completion order; keep the report stable.
	sort.SliceStable(r.result.Failures, func(i, j int) bool {
		return stageRank(r.result.Failures[i].Stage) < stageRank(r.result.Failures[j].Stage)
	})

	status := r.result.Status()
	r.crawler.Metrics.IncCategory(status)

	r.logger.Info("category finished",
		slog.String("status", status),
		slog.Int("records", r.result.Records),
		slog.Int("pages", r.result.Pages),
		slog.Int("images", r.result.Images),
		slog.Int("failures", len(r.result.Failures)),
		slog.Duration("duration", r.result.End.Sub(r.result.Start)),
	)
	return r.result
}

func stageRank(stage string) int {
	switch stage {
	case models.StageListing:
		return 0
	case models.StageDetail:
		return 1
	case models.StageImage:
		return 2
	default:
		return 3
	}
}

package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/gocolly/colly/v2"
)

// Request phases used as metric labels.
const (
	phasePage  = "page"
	phaseImage = "image"
)

const (
	ctxStart    = "start"
	ctxResponse = "response"
)

// Fetcher issues GET requests through a shared colly collector. The
// collector owns the connection pool and the request limit rule, so every
// caller shares one concurrency cap.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics

	requestCount int64
}

// NewFetcher builds a fetcher configured from cfg. A nil metrics value
// disables instrumentation.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}
	f.retry = newRetryManager(cfg, metrics)

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
	})
	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			f.Metrics.ObserveDuration(time.Since(start))
		}
		r.Ctx.Put(ctxResponse, r)
	})

	return f, nil
}

// WithTransport replaces the HTTP transport used for every request.
func (f *Fetcher) WithTransport(transport http.RoundTripper) {
	f.collector.WithTransport(transport)
}

// Fetch retrieves rawURL and parses it into a document whose base is the
// final response URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*parser.Document, error) {
	resp, err := f.get(ctx, rawURL, phasePage)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &MalformedDocumentError{URL: rawURL, Err: errors.New("empty body")}
	}
	doc, err := parser.NewDocumentFromURL(responseURL(resp, rawURL), bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &MalformedDocumentError{URL: rawURL, Err: err}
	}
	return doc, nil
}

// FetchBytes retrieves rawURL and returns the raw body.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.get(ctx, rawURL, phaseImage)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// RequestCount is the number of attempts issued so far, retries included.
func (f *Fetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// RetryCount is the number of retries scheduled so far.
func (f *Fetcher) RetryCount() int {
	return f.retry.TotalRetries()
}

func (f *Fetcher) get(ctx context.Context, rawURL, phase string) (*colly.Response, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: rawURL, Cause: err}
		}

		resp, err := f.attempt(rawURL, phase)
		if err == nil {
			return resp, nil
		}

		kind := errorTypeLabel(err)
		f.Metrics.IncError(kind)
		slog.Debug("request error",
			slog.String("url", rawURL),
			slog.String("error_type", kind),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if !retryable(err) || !f.retry.Wait(ctx, rawURL, attempt) {
			return nil, err
		}
	}
}

func (f *Fetcher) attempt(rawURL, phase string) (*colly.Response, error) {
	atomic.AddInt64(&f.requestCount, 1)
	f.Metrics.IncRequest(phase)

	rctx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, rctx, nil); err != nil {
		return nil, &FetchError{URL: rawURL, Cause: classifyError(err, 0)}
	}

	resp, ok := rctx.GetAny(ctxResponse).(*colly.Response)
	if !ok || resp == nil {
		return nil, &FetchError{URL: rawURL, Cause: errors.New("no response")}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{
			URL:    rawURL,
			Status: resp.StatusCode,
			Cause:  classifyError(nil, resp.StatusCode),
		}
	}
	return resp, nil
}

func responseURL(resp *colly.Response, fallback string) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}
	u, err := url.Parse(fallback)
	if err != nil {
		return nil
	}
	return u
}

// retryManager bounds retries per request and spaces them with capped
// exponential backoff. Retries go back through the collector, so the
// limit rule still applies.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics

	mu           sync.Mutex
	totalRetries int
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:     cfg,
		metrics: metrics,
	}
}

// Wait blocks for the backoff preceding retry number attempt and reports
// whether the retry should be issued.
func (rm *retryManager) Wait(ctx context.Context, url string, attempt int) bool {
	if attempt > rm.cfg.MaxRetries {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	rm.mu.Lock()
	rm.totalRetries++
	rm.mu.Unlock()
	rm.metrics.IncRetries()

	delay := rm.backoff(attempt)
	slog.Debug("scheduling retry",
		slog.String("url", url),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

package scraper

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ErrPageCapReached ends a walk whose last permitted page still links to a
// next page.
var ErrPageCapReached = errors.New("page cap reached with pages remaining")

// ListingPage is one fetched page of a category listing.
type ListingPage struct {
	URL    string
	Number int
	Books  []string
}

// PageWalker follows a category's "next" links from its first listing page.
type PageWalker struct {
	fetcher  *Fetcher
	maxPages int
}

// NewPageWalker returns a walker that stops after maxPages pages. A
// non-positive maxPages means no cap.
func NewPageWalker(fetcher *Fetcher, maxPages int) *PageWalker {
	return &PageWalker{fetcher: fetcher, maxPages: maxPages}
}

// Pages yields the listing pages of a category in order. A fetch failure is
// yielded as the last element. The walk also ends when a page has no next
// link or when the next link points at a page already walked. Reaching the
// page cap with a next link still pending yields ErrPageCapReached, with the
// unvisited page's URL, as the last element. Every call fetches afresh.
func (w *PageWalker) Pages(ctx context.Context, listingURL string) iter.Seq2[ListingPage, error] {
	return func(yield func(ListingPage, error) bool) {
		visited := make(map[string]struct{})
		next := listingURL

		for number := 1; next != ""; number++ {
			if w.maxPages > 0 && number > w.maxPages {
				slog.Warn("page cap reached, remaining pages skipped",
					slog.String("listing", listingURL),
					slog.String("next", next),
					slog.Int("max_pages", w.maxPages),
				)
				yield(ListingPage{URL: next, Number: number}, ErrPageCapReached)
				return
			}
			if _, seen := visited[next]; seen {
				slog.Warn("pagination revisits a page, stopping",
					slog.String("listing", listingURL),
					slog.String("url", next),
				)
				return
			}
			visited[next] = struct{}{}

			doc, err := w.fetcher.Fetch(ctx, next)
			if err != nil {
				yield(ListingPage{URL: next, Number: number}, err)
				return
			}
			visited[doc.URL.String()] = struct{}{}
			w.fetcher.Metrics.IncPages()

			page := ListingPage{
				URL:    next,
				Number: number,
				Books:  parser.BookLinks(doc),
			}
			following, ok := parser.NextPage(doc)
			if !ok {
				following = ""
			}
			if !yield(page, nil) {
				return
			}
			next = following
		}
	}
}

// Walk yields every book detail URL of a category, page 1 items first, in
// on-page order. A listing fetch failure ends the sequence with an error.
func (w *PageWalker) Walk(ctx context.Context, listingURL string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for page, err := range w.Pages(ctx, listingURL) {
			if err != nil {
				yield("", err)
				return
			}
			for _, link := range page.Books {
				if !yield(link, nil) {
					return
				}
			}
		}
	}
}

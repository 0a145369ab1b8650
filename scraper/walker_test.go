package scraper

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/jarcoal/httpmock"
)

const categoryDir = testBase + "catalogue/category/books/fiction_10/"

func collectWalk(t *testing.T, w *PageWalker, start string) ([]string, error) {
	t.Helper()
	var links []string
	var walkErr error
	count := 0
	for link, err := range w.Walk(context.Background(), start) {
		count++
		if count > 1000 {
			t.Fatal("walk did not terminate")
		}
		if err != nil {
			walkErr = err
			continue
		}
		links = append(links, link)
	}
	return links, walkErr
}

func TestPageWalkerFollowsPagination(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html", "../../../b_2/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", categoryDir+"page-2.html",
		htmlResponder(listingHTML([]string{"../../../c_3/index.html"}, "page-3.html")))
	transport.RegisterResponder("GET", categoryDir+"page-3.html",
		htmlResponder(listingHTML([]string{"../../../d_4/index.html"}, "")))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), cfg.MaxPages)
	links, err := collectWalk(t, w, categoryDir+"index.html")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	want := []string{
		testBase + "catalogue/a_1/index.html",
		testBase + "catalogue/b_2/index.html",
		testBase + "catalogue/c_3/index.html",
		testBase + "catalogue/d_4/index.html",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestPageWalkerSinglePage(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html"}, "")))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), cfg.MaxPages)
	links, err := collectWalk(t, w, categoryDir+"index.html")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %v", links)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestPageWalkerListingFailureEndsSequence(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", categoryDir+"page-2.html", httpmock.NewStringResponder(http.StatusNotFound, ""))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), cfg.MaxPages)

	var seq []string
	var lastErr error
	for link, err := range w.Walk(context.Background(), categoryDir+"index.html") {
		if lastErr != nil {
			t.Fatal("sequence continued after an error")
		}
		if err != nil {
			lastErr = err
			continue
		}
		seq = append(seq, link)
	}

	if len(seq) != 1 {
		t.Fatalf("links before failure = %v", seq)
	}
	var fetchErr *FetchError
	if !errors.As(lastErr, &fetchErr) || fetchErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 FetchError, got %v", lastErr)
	}
}

func TestPageWalkerStopsOnRevisit(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", categoryDir+"page-2.html",
		htmlResponder(listingHTML([]string{"../../../b_2/index.html"}, "index.html")))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), cfg.MaxPages)
	links, err := collectWalk(t, w, categoryDir+"index.html")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2", links)
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestPageWalkerMaxPages(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", categoryDir+"page-2.html",
		htmlResponder(listingHTML([]string{"../../../b_2/index.html"}, "page-3.html")))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), 2)
	links, err := collectWalk(t, w, categoryDir+"index.html")
	if !errors.Is(err, ErrPageCapReached) {
		t.Fatalf("expected ErrPageCapReached, got %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2", links)
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}

	var capped ListingPage
	for page, err := range w.Pages(context.Background(), categoryDir+"index.html") {
		if err != nil {
			capped = page
		}
	}
	if capped.URL != categoryDir+"page-3.html" || capped.Number != 3 {
		t.Fatalf("capped page = %+v", capped)
	}
}

func TestPageWalkerMaxPagesOnLastPage(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", categoryDir+"page-2.html",
		htmlResponder(listingHTML([]string{"../../../b_2/index.html"}, "")))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), 2)
	links, err := collectWalk(t, w, categoryDir+"index.html")
	if err != nil {
		t.Fatalf("a cap equal to the page count loses nothing, got %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2", links)
	}
}

func TestPageWalkerPagesNumbers(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryDir+"index.html",
		htmlResponder(listingHTML([]string{"../../../a_1/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", categoryDir+"page-2.html",
		htmlResponder(listingHTML(nil, "")))

	w := NewPageWalker(newTestFetcher(t, cfg, transport), 0)
	var numbers []int
	for page, err := range w.Pages(context.Background(), categoryDir+"index.html") {
		if err != nil {
			t.Fatalf("pages: %v", err)
		}
		numbers = append(numbers, page.Number)
	}
	if len(numbers) != 2 || numbers[0] != 1 || numbers[1] != 2 {
		t.Fatalf("page numbers = %v", numbers)
	}
}

func TestCategoryDiscoverer(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase, htmlResponder(homeHTML("Travel", "Historical Fiction", "Poetry")))
	fetcher := newTestFetcher(t, cfg, transport)

	targets, err := NewCategoryDiscoverer(fetcher, nil).Discover(context.Background(), testBase)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("targets = %v", targets)
	}
	if targets[1].Name != "Historical Fiction" ||
		targets[1].URL != testBase+"catalogue/category/books/historical-fiction_3/index.html" {
		t.Fatalf("unexpected target: %+v", targets[1])
	}

	filtered, err := NewCategoryDiscoverer(fetcher, []string{"poetry", " TRAVEL "}).Discover(context.Background(), testBase)
	if err != nil {
		t.Fatalf("discover filtered: %v", err)
	}
	if len(filtered) != 2 || filtered[0].Name != "Travel" || filtered[1].Name != "Poetry" {
		t.Fatalf("filtered = %v", filtered)
	}

	_, err = NewCategoryDiscoverer(fetcher, []string{"Cooking"}).Discover(context.Background(), testBase)
	if !errors.Is(err, ErrNoCategories) {
		t.Fatalf("expected ErrNoCategories, got %v", err)
	}
}

func TestCategoryDiscovererRootFailure(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase, httpmock.NewStringResponder(http.StatusForbidden, ""))

	_, err := NewCategoryDiscoverer(newTestFetcher(t, cfg, transport), nil).Discover(context.Background(), testBase)
	if ErrorKind(err) != "forbidden" {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestImageFetcherStores(t *testing.T) {
	cfg := testConfig(t)
	imageURL := testBase + "media/cache/ab/cover.jpg"
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", imageURL, httpmock.NewBytesResponder(http.StatusOK, payload))

	images := NewImageFetcher(newTestFetcher(t, cfg, transport), cfg.ImagesDir(), 2)
	key := models.AssetKey{Category: "Historical Fiction", UPC: "a897fe39b1053632"}
	if err := images.FetchAndStore(context.Background(), imageURL, key); err != nil {
		t.Fatalf("fetch and store: %v", err)
	}

	path := filepath.Join(cfg.ImagesDir(), "Historical_Fiction", "a897fe39b1053632.jpg")
	if images.Path(key) != path {
		t.Fatalf("path = %q, want %q", images.Path(key), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("stored bytes differ")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the image in %s, found %d entries", filepath.Dir(path), len(entries))
	}
}

func TestImageFetcherFailures(t *testing.T) {
	cfg := testConfig(t)
	imageURL := testBase + "media/cache/missing.jpg"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", imageURL, httpmock.NewStringResponder(http.StatusNotFound, ""))
	images := NewImageFetcher(newTestFetcher(t, cfg, transport), cfg.ImagesDir(), 1)

	tests := []struct {
		name string
		url  string
		key  models.AssetKey
	}{
		{name: "download fails", url: imageURL, key: models.AssetKey{Category: "Poetry", UPC: "abc"}},
		{name: "no upc", url: imageURL, key: models.AssetKey{Category: "Poetry"}},
		{name: "no url", url: "", key: models.AssetKey{Category: "Poetry", UPC: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := images.FetchAndStore(context.Background(), tt.url, tt.key)
			var assetErr *AssetError
			if !errors.As(err, &assetErr) {
				t.Fatalf("expected AssetError, got %v", err)
			}
			if assetErr.Key != tt.key {
				t.Fatalf("key = %v, want %v", assetErr.Key, tt.key)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(cfg.ImagesDir(), "Poetry", "abc.jpg")); !os.IsNotExist(err) {
		t.Fatalf("no image should be stored, stat err = %v", err)
	}
}

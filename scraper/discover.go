package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ErrNoCategories is returned when the site root yields no crawlable
// category after filtering.
var ErrNoCategories = errors.New("no categories found")

// CategoryDiscoverer reads the category sidebar of the site root.
type CategoryDiscoverer struct {
	fetcher *Fetcher
	filter  map[string]struct{}
}

// NewCategoryDiscoverer returns a discoverer that keeps only the named
// categories (case-insensitive). An empty filter keeps all of them.
func NewCategoryDiscoverer(fetcher *Fetcher, filter []string) *CategoryDiscoverer {
	d := &CategoryDiscoverer{fetcher: fetcher}
	for _, name := range filter {
		name = strings.ToLower(parser.NormalizeText(name))
		if name == "" {
			continue
		}
		if d.filter == nil {
			d.filter = make(map[string]struct{})
		}
		d.filter[name] = struct{}{}
	}
	return d
}

// Discover returns one target per leaf category in sidebar order.
func (d *CategoryDiscoverer) Discover(ctx context.Context, rootURL string) ([]models.CrawlTarget, error) {
	doc, err := d.fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return nil, fmt.Errorf("fetch site root: %w", err)
	}

	all := parser.Categories(doc)
	if len(all) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoCategories, rootURL)
	}
	if d.filter == nil {
		return all, nil
	}

	matched := make(map[string]struct{}, len(d.filter))
	var targets []models.CrawlTarget
	for _, target := range all {
		key := strings.ToLower(target.Name)
		if _, ok := d.filter[key]; ok {
			targets = append(targets, target)
			matched[key] = struct{}{}
		}
	}
	for name := range d.filter {
		if _, ok := matched[name]; !ok {
			slog.Warn("requested category not found", slog.String("category", name))
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w matching the category filter", ErrNoCategories)
	}
	return targets, nil
}

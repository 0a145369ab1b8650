package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Structural elements whose absence makes a page unusable.
const (
	FieldProductMain = "product_main"
	FieldSpecTable   = "spec_table"
	FieldBreadcrumb  = "breadcrumb"
)

// Spec table keys.
const (
	KeyUPC          = "UPC"
	KeyPriceExclTax = "Price (excl. tax)"
	KeyPriceInclTax = "Price (incl. tax)"
	KeyAvailability = "Availability"
)

// ExtractionError reports a missing structural element on a detail page.
type ExtractionError struct {
	URL   string
	Field string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction: %s missing on %s", e.Field, e.URL)
}

// Extract builds a Book from a detail page. Only a missing product block,
// spec table or breadcrumb is an error; every other field falls back to its
// zero value.
func Extract(doc *Document) (*models.Book, error) {
	if doc == nil || doc.DOM == nil {
		return nil, fmt.Errorf("extract: nil document")
	}
	source := doc.URL.String()

	main := doc.DOM.Find("div.product_main").First()
	if main.Length() == 0 {
		return nil, &ExtractionError{URL: source, Field: FieldProductMain}
	}

	table := doc.DOM.Find("table.table-striped").First()
	if table.Length() == 0 {
		return nil, &ExtractionError{URL: source, Field: FieldSpecTable}
	}
	specs := SpecTable(table)

	crumbs := doc.DOM.Find("ul.breadcrumb").First().Find("li")
	if crumbs.Length() < 3 {
		return nil, &ExtractionError{URL: source, Field: FieldBreadcrumb}
	}

	book := &models.Book{
		DetailURL:      source,
		UPC:            specs[KeyUPC],
		Title:          strings.TrimSpace(main.Find("h1").First().Text()),
		PriceInclTax:   specs[KeyPriceInclTax],
		PriceExclTax:   specs[KeyPriceExclTax],
		AvailableCount: ParseAvailability(specs[KeyAvailability]),
		Description:    description(doc),
		Category:       NormalizeText(crumbs.Eq(2).Text()),
		Rating:         RatingFromClass(main.Find("p.star-rating").First().AttrOr("class", "")),
		ImageURL:       imageURL(doc),
	}
	return book, nil
}

// SpecTable maps each row's header cell to its value cell, both trimmed.
func SpecTable(table *goquery.Selection) map[string]string {
	out := make(map[string]string)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th").First().Text())
		if key == "" {
			return
		}
		out[key] = strings.TrimSpace(row.Find("td").First().Text())
	})
	return out
}

func description(doc *Document) string {
	marker := doc.DOM.Find("div#product_description").First()
	if marker.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(marker.NextAllFiltered("p").First().Text())
}

func imageURL(doc *Document) string {
	src, ok := doc.DOM.Find("div.item.active img").First().Attr("src")
	if !ok {
		return ""
	}
	abs, err := doc.Resolve(src)
	if err != nil {
		return ""
	}
	return abs
}

package parser

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page together with the URL it was served from.
// Relative references on the page resolve against that URL.
type Document struct {
	URL *url.URL
	DOM *goquery.Document
}

// NewDocument parses body as HTML served from rawURL.
func NewDocument(rawURL string, body io.Reader) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse document url: %w", err)
	}
	return NewDocumentFromURL(u, body)
}

// NewDocumentFromURL parses body as HTML served from u.
func NewDocumentFromURL(u *url.URL, body io.Reader) (*Document, error) {
	if u == nil {
		return nil, fmt.Errorf("document url is nil")
	}
	dom, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	dom.Url = u
	return &Document{URL: u, DOM: dom}, nil
}

// Resolve turns ref into an absolute URL using standard reference
// resolution against the document's own URL.
func (d *Document) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return d.URL.ResolveReference(parsed).String(), nil
}

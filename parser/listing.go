package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// BookLinks returns the detail URLs on a listing page in on-page order.
// Links that cannot be resolved are skipped.
func BookLinks(doc *Document) []string {
	var links []string
	doc.DOM.Find("article.product_pod h3 a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		abs, err := doc.Resolve(href)
		if err != nil {
			return
		}
		links = append(links, abs)
	})
	return links
}

// NextPage returns the absolute URL of the following listing page. The
// second result is false when the page has no usable "next" link.
func NextPage(doc *Document) (string, bool) {
	href, ok := doc.DOM.Find("li.next a").First().Attr("href")
	if !ok {
		return "", false
	}
	abs, err := doc.Resolve(href)
	if err != nil {
		return "", false
	}
	return abs, true
}

// Categories lists the leaf categories of the sidebar navigation.
func Categories(doc *Document) []models.CrawlTarget {
	var targets []models.CrawlTarget
	doc.DOM.Find("div.side_categories ul li ul li a").Each(func(_ int, a *goquery.Selection) {
		name := NormalizeText(a.Text())
		href, ok := a.Attr("href")
		if name == "" || !ok {
			return
		}
		abs, err := doc.Resolve(href)
		if err != nil {
			return
		}
		targets = append(targets, models.CrawlTarget{Name: name, URL: abs})
	})
	return targets
}

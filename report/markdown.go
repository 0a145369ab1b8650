// Package report renders a finished crawl as a markdown document.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// maxFailuresPerCategory bounds the failure table of one category.
const maxFailuresPerCategory = 50

// WriteMarkdown writes a crawl summary, a per-category table and the failed
// URLs of every category to w.
func WriteMarkdown(w io.Writer, result *models.CrawlResult) error {
	if result == nil {
		return fmt.Errorf("nil crawl result")
	}

	md := markdown.NewMarkdown(w)

	md.H1("Catalog Crawl Report")
	md.PlainText("")
	writeSummary(md, result)
	writeCategories(md, result)
	writeErrors(md, result)
	writeFailures(md, result)

	return md.Build()
}

func writeSummary(md *markdown.Markdown, result *models.CrawlResult) {
	failed := result.FailedCategories()

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", result.StartTime.Format(time.RFC3339)},
			{"Duration", result.EndTime.Sub(result.StartTime).Round(time.Millisecond).String()},
			{"Categories", strconv.Itoa(len(result.Categories))},
			{"Failed categories", strconv.Itoa(len(failed))},
			{"Records", strconv.Itoa(result.TotalRecords())},
			{"Requests", strconv.Itoa(result.RequestCount)},
			{"Retries", strconv.Itoa(result.RetryCount)},
		},
	})
	md.PlainText("")

	switch {
	case len(failed) > 0:
		md.Warningf("%d of %d categories produced no records.", len(failed), len(result.Categories))
	case len(result.AllFailures()) > 0:
		md.Note("Every category produced output, but some URLs failed.")
	default:
		md.Tip("Every URL was crawled successfully.")
	}
	md.PlainText("")
}

func writeCategories(md *markdown.Markdown, result *models.CrawlResult) {
	md.H2("Categories")
	md.PlainText("")

	if len(result.Categories) == 0 {
		md.PlainText("No categories were crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(result.Categories))
	for _, c := range result.Categories {
		rows = append(rows, []string{
			c.Target.Name,
			c.Status(),
			strconv.Itoa(c.Pages),
			strconv.Itoa(c.Records),
			strconv.Itoa(c.Images),
			strconv.Itoa(len(c.Failures)),
			strconv.Itoa(rejected(c)),
			c.End.Sub(c.Start).Round(time.Millisecond).String(),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Status", "Pages", "Records", "Images", "Failures", "Rejected", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeErrors(md *markdown.Markdown, result *models.CrawlResult) {
	if len(result.ErrorsByType) == 0 {
		return
	}

	md.H2("Errors by Type")
	md.PlainText("")

	kinds := make([]string, 0, len(result.ErrorsByType))
	for kind := range result.ErrorsByType {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	rows := make([][]string, 0, len(kinds))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Failures by error type"),
		piechart.WithShowData(true),
	)
	for _, kind := range kinds {
		count := result.ErrorsByType[kind]
		rows = append(rows, []string{kind, strconv.Itoa(count)})
		chart.LabelAndIntValue(kind, uint64(count))
	}

	md.Table(markdown.TableSet{
		Header: []string{"Error type", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeFailures(md *markdown.Markdown, result *models.CrawlResult) {
	if len(result.AllFailures()) == 0 && len(result.FailedCategories()) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	for _, c := range result.Categories {
		if len(c.Failures) == 0 && c.Err == nil {
			continue
		}
		md.H3(c.Target.Name)
		md.PlainText("")
		if c.Err != nil {
			md.PlainTextf("Stopped early: `%v`", c.Err)
			md.PlainText("")
		}
		if len(c.Failures) == 0 {
			continue
		}

		failures := c.Failures
		if len(failures) > maxFailuresPerCategory {
			failures = failures[:maxFailuresPerCategory]
		}
		rows := make([][]string, 0, len(failures))
		for _, f := range failures {
			rows = append(rows, []string{f.Stage, f.Kind, f.URL})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Stage", "Error type", "URL"},
			Rows:   rows,
		})
		if omitted := len(c.Failures) - len(failures); omitted > 0 {
			md.PlainTextf("%d more failures omitted.", omitted)
		}
		md.PlainText("")
	}
}

func rejected(c models.CategoryResult) int {
	n := 0
	for _, count := range c.Rejected {
		n += count
	}
	return n
}

package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/gocolly/colly/v2"
)

var availableRe = regexp.MustCompile(`\((\d+) available\)`)

// ValidateBook ensures the record can be written: it needs its identity and
// in-range numeric fields. Missing optional text is allowed.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.DetailURL) == "" {
		return fmt.Errorf("book missing detail url")
	}
	if b.Rating < 0 || b.Rating > 5 {
		return fmt.Errorf("book %s has rating %d out of range", b.DetailURL, b.Rating)
	}
	if b.AvailableCount < 0 {
		return fmt.Errorf("book %s has negative availability", b.DetailURL)
	}
	return nil
}

// ParseAvailability extracts N from "In stock (N available)". Anything else,
// including an empty string, yields 0.
func ParseAvailability(text string) int {
	match := availableRe.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// RatingFromClass reads the rating token from a class attribute such as
// "star-rating Three".
func RatingFromClass(class string) int {
	for _, token := range strings.Fields(class) {
		if token == "star-rating" {
			continue
		}
		if n := RatingToNumeric(token); n > 0 {
			return n
		}
	}
	return 0
}

// NormalizeText collapses runs of whitespace and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SafeName turns a category or code into a file-system safe stem:
// whitespace becomes "_" and path separators are removed.
func SafeName(name string) string {
	sanitized := strings.TrimSuffix(colly.SanitizeFileName(NormalizeText(name)+".x"), ".x")
	if sanitized == "" {
		return "unnamed"
	}
	return sanitized
}

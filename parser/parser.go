// Package parser turns catalogue and detail page HTML into record fields.
package parser

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/books-analytics/models"
)

// ErrInvalidPrice is returned when a price label cannot be read as a decimal.
var ErrInvalidPrice = errors.New("invalid price")

// ratingLabels maps the star-rating class used by the catalogue to its value.
var ratingLabels = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

var priceSymbols = strings.NewReplacer("Â£", "", "£", "")

// ValidateBook ensures the scraper captured the required fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title")
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("book missing url for %s", b.Title)
	}
	if b.Price < 0 || math.IsNaN(b.Price) {
		return fmt.Errorf("book has invalid price %v for %s", b.Price, b.Title)
	}
	if b.Rating < 0 || b.Rating > 5 {
		return fmt.Errorf("book has rating %d out of range for %s", b.Rating, b.Title)
	}
	if b.Reviews < 0 {
		return fmt.Errorf("book has negative review count for %s", b.Title)
	}
	return nil
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price string) string {
	return strings.TrimSpace(priceSymbols.Replace(strings.TrimSpace(price)))
}

// ParsePrice converts a label such as "£51.77" to 51.77.
func ParsePrice(price string) (float64, error) {
	normalized := NormalizePrice(price)
	if normalized == "" {
		return 0, fmt.Errorf("%w: empty label", ErrInvalidPrice)
	}
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	return value, nil
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RatingToNumeric converts the textual rating to a numeric scale.
// Unknown labels map to zero.
func RatingToNumeric(rating string) int {
	return ratingLabels[strings.TrimSpace(rating)]
}

// ResolveURL resolves ref against base.
func ResolveURL(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if base == nil {
		return parsed.String(), nil
	}
	return base.ResolveReference(parsed).String(), nil
}

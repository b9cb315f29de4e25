package parser

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/books-analytics/models"
)

func TestValidateBook(t *testing.T) {
	tests := []struct {
		name    string
		book    *models.Book
		wantErr bool
	}{
		{
			name: "valid book",
			book: &models.Book{
				Title:        "Test Book",
				Price:        10,
				Rating:       5,
				Availability: "In stock",
				URL:          "http://example.com",
				ScrapedAt:    time.Now(),
			},
			wantErr: false,
		},
		{
			name:    "nil book",
			book:    nil,
			wantErr: true,
		},
		{
			name: "missing title",
			book: &models.Book{
				Price: 10,
				URL:   "http://example.com",
			},
			wantErr: true,
		},
		{
			name: "missing url",
			book: &models.Book{
				Title: "Test Book",
				Price: 10,
			},
			wantErr: true,
		},
		{
			name: "negative price",
			book: &models.Book{
				Title: "Test Book",
				Price: -1,
				URL:   "http://example.com",
			},
			wantErr: true,
		},
		{
			name: "rating out of range",
			book: &models.Book{
				Title:  "Test Book",
				Price:  10,
				Rating: 6,
				URL:    "http://example.com",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(tt.book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with currency symbol", input: "£51.77", expected: "51.77"},
		{name: "mis-decoded symbol", input: "Â£51.77", expected: "51.77"},
		{name: "with whitespace", input: "  £10.50  ", expected: "10.50"},
		{name: "already clean", input: "25.99", expected: "25.99"},
		{name: "multiple symbols", input: "£ 99.99 £", expected: "99.99"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePrice(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{input: "£51.77", expected: 51.77},
		{input: "Â£13.99", expected: 13.99},
		{input: " £0.00 ", expected: 0},
		{input: "20", expected: 20},
		{input: "", wantErr: true},
		{input: "£free", wantErr: true},
		{input: "£-3.00", wantErr: true},
		{input: "NaN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPrice) {
					t.Fatalf("ParsePrice(%q) error = %v, want ErrInvalidPrice", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Fatalf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "One", expected: 1},
		{input: "Two", expected: 2},
		{input: "Three", expected: 3},
		{input: "Four", expected: 4},
		{input: "Five", expected: 5},
		{input: "Zero", expected: 0},
		{input: "Invalid", expected: 0},
		{input: "", expected: 0},
		{input: "three", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RatingToNumeric(tt.input)
			if result != tt.expected {
				t.Errorf("RatingToNumeric(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with whitespace", input: "  In stock (22 available)  ", expected: "In stock (22 available)"},
		{name: "embedded newlines", input: "\n\n    In stock\n    \n", expected: "In stock"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeAvailability(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeAvailability(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

const listingFixture = `<html><body><ol class="row">
<li><article class="product_pod">
  <div class="image_container"><a href="a-light-in-the-attic_1000/index.html"><img src="../media/cache/2c/da/2cdad67c.jpg" alt="A Light in the Attic" class="thumbnail"></a></div>
  <p class="star-rating Three"><i class="icon-star"></i></p>
  <h3><a href="a-light-in-the-attic_1000/index.html" title="A Light in the Attic">A Light in the ...</a></h3>
  <div class="product_price">
    <p class="price_color">£51.77</p>
    <p class="instock availability"><i class="icon-ok"></i>
        In stock
    </p>
  </div>
</article></li>
<li><article class="product_pod">
  <p class="star-rating Seven"></p>
  <h3><a href="no-image_2/index.html" title="No Image">No Image</a></h3>
  <p class="price_color">Â£10.00</p>
</article></li>
<li><article class="product_pod">
  <h3><a href="broken_3/index.html" title="Broken Price">Broken</a></h3>
  <p class="price_color">call us</p>
</article></li>
</ol></body></html>`

func parseFixture(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

func TestParseListing(t *testing.T) {
	doc := parseFixture(t, listingFixture)
	pageURL := mustURL(t, "http://books.toscrape.com/catalogue/page-2.html")
	baseURL := mustURL(t, "http://books.toscrape.com/")
	entries := doc.Find(ListingSelector)
	if entries.Length() != 3 {
		t.Fatalf("entries = %d, want 3", entries.Length())
	}

	first, err := ParseListing(entries.Eq(0), pageURL, baseURL)
	if err != nil {
		t.Fatalf("parse first listing: %v", err)
	}
	want := models.Listing{
		Title:        "A Light in the Attic",
		Price:        51.77,
		Rating:       3,
		Availability: "In stock",
		URL:          "http://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
		ImageURL:     "http://books.toscrape.com/media/cache/2c/da/2cdad67c.jpg",
	}
	if first != want {
		t.Fatalf("listing = %+v, want %+v", first, want)
	}

	second, err := ParseListing(entries.Eq(1), pageURL, baseURL)
	if err != nil {
		t.Fatalf("parse second listing: %v", err)
	}
	if second.ImageURL != models.NotAvailable {
		t.Fatalf("image url = %q, want %q", second.ImageURL, models.NotAvailable)
	}
	if second.Rating != 0 {
		t.Fatalf("unknown rating label should map to 0, got %d", second.Rating)
	}
	if second.Availability != "" {
		t.Fatalf("missing availability should be empty, got %q", second.Availability)
	}

	if _, err := ParseListing(entries.Eq(2), pageURL, baseURL); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestParseListingMissingLink(t *testing.T) {
	doc := parseFixture(t, `<article class="product_pod"><p class="price_color">£1.00</p></article>`)
	_, err := ParseListing(doc.Find(ListingSelector), nil, nil)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

const detailFixture = `<html><body><article class="product_page">
<div id="product_description" class="sub-header"><h2>Product Description</h2></div>
<p>It's hard to imagine a world without A Light in the Attic.</p>
<div class="sub-header"><h2>Product Information</h2></div>
<table class="table table-striped">
  <tr><th>UPC</th><td>a897fe39b1053632</td></tr>
  <tr><th>Product Type</th><td>Books</td></tr>
  <tr><th>Availability</th><td>In stock (22 available)</td></tr>
  <tr><th>Number of reviews</th><td>0</td></tr>
</table>
</article></body></html>`

func TestParseDetails(t *testing.T) {
	doc := parseFixture(t, detailFixture)
	got := ParseDetails(doc.Selection)

	if got.Status != models.DetailComplete {
		t.Fatalf("status = %s, want complete", got.Status)
	}
	if got.UPC != "a897fe39b1053632" {
		t.Fatalf("upc = %q", got.UPC)
	}
	if got.Availability != "In stock (22 available)" {
		t.Fatalf("availability = %q", got.Availability)
	}
	if got.Reviews != 0 {
		t.Fatalf("reviews = %d, want 0", got.Reviews)
	}
	if !strings.HasPrefix(got.Description, "It's hard to imagine") {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestParseDetailsMissingTable(t *testing.T) {
	doc := parseFixture(t, `<html><body><div id="product_description"></div><p>Only a description.</p></body></html>`)
	got := ParseDetails(doc.Selection)

	if got.Status != models.DetailPartial {
		t.Fatalf("status = %s, want partial", got.Status)
	}
	if got.UPC != models.NotAvailable || got.Availability != models.NotAvailable {
		t.Fatalf("expected N/A defaults, got %+v", got)
	}
	if got.Reviews != 0 {
		t.Fatalf("reviews = %d, want 0", got.Reviews)
	}
	if got.Description != "Only a description." {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestParseDetailsBadReviewCount(t *testing.T) {
	doc := parseFixture(t, `<table class="table table-striped"><tr><th>UPC</th><td>x1</td></tr><tr><th>Number of reviews</th><td>many</td></tr></table>`)
	got := ParseDetails(doc.Selection)

	if got.Reviews != 0 || got.Status != models.DetailPartial {
		t.Fatalf("expected defaulted review count, got %+v", got)
	}
	if got.UPC != "x1" {
		t.Fatalf("upc = %q, want x1", got.UPC)
	}
	if got.Description != models.NotAvailable {
		t.Fatalf("description = %q, want N/A", got.Description)
	}
}

func TestResolveURL(t *testing.T) {
	base := mustURL(t, "http://books.toscrape.com/catalogue/page-1.html")
	got, err := ResolveURL(base, "../media/x.jpg")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "http://books.toscrape.com/media/x.jpg" {
		t.Fatalf("resolved = %q", got)
	}
	if _, err := ResolveURL(base, "http://[::1"); err == nil {
		t.Fatalf("expected parse error for malformed url")
	}
}

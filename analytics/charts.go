package analytics

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/aluiziolira/books-analytics/models"
)

const (
	// DefaultHistogramBins is the bin count of the price distribution chart.
	DefaultHistogramBins = 30
	galleryTitleLimit    = 30
	gallerySuffix        = "..."
)

// Bin is one bucket of a histogram. Lower is inclusive; Upper is exclusive
// except for the last bucket.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Box holds the five-number summary drawn by a box plot.
type Box struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// GalleryItem is one captioned image.
type GalleryItem struct {
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	URL      string  `json:"url"`
	Price    float64 `json:"price"`
	Rating   int     `json:"rating"`
}

// PriceHistogram splits the price range into equal-width bins. A constant
// price column puts every row in a single bin.
func (t *Table) PriceHistogram(bins int) []Bin {
	if t.Len() == 0 || bins <= 0 {
		return []Bin{}
	}
	prices := t.Prices()
	lo, _ := stats.Min(prices)
	hi, _ := stats.Max(prices)
	if lo == hi {
		return []Bin{{Lower: lo, Upper: hi, Count: len(prices)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lower = lo + float64(i)*width
		out[i].Upper = lo + float64(i+1)*width
	}
	out[bins-1].Upper = hi

	for _, price := range prices {
		i := int(math.Floor((price - lo) / width))
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// PriceBox returns the quartiles of the price column.
func (t *Table) PriceBox() Box {
	if t.Len() == 0 {
		return Box{}
	}
	prices := t.Prices()
	box := Box{}
	box.Min, _ = stats.Min(prices)
	box.Max, _ = stats.Max(prices)
	box.Median, _ = stats.Median(prices)
	if t.Len() < 2 {
		box.Q1, box.Q3 = box.Median, box.Median
		return box
	}
	if q, err := stats.Quartile(prices); err == nil {
		box.Q1, box.Q3 = q.Q1, q.Q3
	}
	return box
}

// Gallery returns the first n rows as captioned images. Titles longer than
// 30 characters are cut and suffixed with "...".
func (t *Table) Gallery(n int) []GalleryItem {
	if n > t.Len() {
		n = t.Len()
	}
	if n <= 0 {
		return []GalleryItem{}
	}
	out := make([]GalleryItem, 0, n)
	for _, book := range t.books[:n] {
		out = append(out, GalleryItem{
			Title:    TruncateTitle(book.Title),
			ImageURL: book.ImageURL,
			URL:      book.URL,
			Price:    book.Price,
			Rating:   book.Rating,
		})
	}
	return out
}

// HasImage reports whether the item carries a usable image URL.
func (g GalleryItem) HasImage() bool {
	return g.ImageURL != "" && g.ImageURL != models.NotAvailable
}

// TruncateTitle shortens a caption to 30 characters plus an ellipsis.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= galleryTitleLimit {
		return title
	}
	return string(runes[:galleryTitleLimit]) + gallerySuffix
}

// Package analytics computes the dashboard's derived statistics over a table
// of scraped records.
package analytics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/montanaflynn/stats"

	"github.com/aluiziolira/books-analytics/models"
	"github.com/aluiziolira/books-analytics/pipeline"
)

const (
	colIdx    = "idx"
	colPrice  = "price"
	colRating = "rating"
)

// ErrInvalidRange is returned when a filter's lower price bound exceeds the upper one.
var ErrInvalidRange = errors.New("analytics: price range lower bound exceeds upper bound")

// Table is an immutable view over records in their persisted order.
type Table struct {
	books []*models.Book
}

// Summary holds the headline metrics of a table.
type Summary struct {
	Count       int     `json:"count"`
	MeanPrice   float64 `json:"mean_price"`
	MedianPrice float64 `json:"median_price"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	MeanRating  float64 `json:"mean_rating"`
}

// RatingCount is the number of records with one rating value.
type RatingCount struct {
	Rating int     `json:"rating"`
	Count  int     `json:"count"`
	Share  float64 `json:"share"`
}

// Filter selects records by inclusive price range and rating set. A nil
// Ratings slice selects every rating; an empty one selects none.
type Filter struct {
	PriceMin float64
	PriceMax float64
	Ratings  []int
}

// NewTable wraps books, skipping nil entries.
func NewTable(books []*models.Book) *Table {
	out := make([]*models.Book, 0, len(books))
	for _, book := range books {
		if book != nil {
			out = append(out, book)
		}
	}
	return &Table{books: out}
}

// Len is the number of rows.
func (t *Table) Len() int {
	return len(t.books)
}

// Books returns the rows in table order.
func (t *Table) Books() []*models.Book {
	out := make([]*models.Book, len(t.books))
	copy(out, t.books)
	return out
}

// Prices returns the price column.
func (t *Table) Prices() stats.Float64Data {
	out := make(stats.Float64Data, len(t.books))
	for i, book := range t.books {
		out[i] = book.Price
	}
	return out
}

// Ratings returns the rating column as decimals.
func (t *Table) Ratings() stats.Float64Data {
	out := make(stats.Float64Data, len(t.books))
	for i, book := range t.books {
		out[i] = float64(book.Rating)
	}
	return out
}

// Summary computes count and price/rating aggregates. An empty table yields
// a zero Summary.
func (t *Table) Summary() Summary {
	if t.Len() == 0 {
		return Summary{}
	}
	prices := t.Prices()
	summary := Summary{Count: t.Len()}
	// Errors only occur for empty input, excluded above.
	summary.MeanPrice, _ = stats.Mean(prices)
	summary.MedianPrice, _ = stats.Median(prices)
	summary.MinPrice, _ = stats.Min(prices)
	summary.MaxPrice, _ = stats.Max(prices)
	summary.MeanRating, _ = stats.Mean(t.Ratings())
	return summary
}

// RatingCounts groups rows by rating, ascending, listing only ratings present.
func (t *Table) RatingCounts() []RatingCount {
	counts := make(map[int]int)
	for _, book := range t.books {
		counts[book.Rating]++
	}

	out := make([]RatingCount, 0, len(counts))
	for rating, count := range counts {
		out = append(out, RatingCount{
			Rating: rating,
			Count:  count,
			Share:  float64(count) / float64(t.Len()) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating < out[j].Rating })
	return out
}

// PriceRatingCorrelation is the Pearson correlation of price and rating. It is
// NaN when fewer than two rows exist or either column is constant.
func (t *Table) PriceRatingCorrelation() float64 {
	if t.Len() < 2 {
		return math.NaN()
	}
	prices, ratings := t.Prices(), t.Ratings()
	for _, column := range []stats.Float64Data{prices, ratings} {
		if sd, err := stats.StandardDeviationPopulation(column); err != nil || sd == 0 {
			return math.NaN()
		}
	}
	corr, err := stats.Correlation(prices, ratings)
	if err != nil {
		return math.NaN()
	}
	return corr
}

// TopByRating returns up to n rows with the highest rating. Ties keep table order.
func (t *Table) TopByRating(n int) []*models.Book {
	return t.top(n, func(a, b *models.Book) bool { return a.Rating > b.Rating })
}

// TopByPrice returns up to n rows with the highest price. Ties keep table order.
func (t *Table) TopByPrice(n int) []*models.Book {
	return t.top(n, func(a, b *models.Book) bool { return a.Price > b.Price })
}

func (t *Table) top(n int, less func(a, b *models.Book) bool) []*models.Book {
	if n <= 0 {
		return []*models.Book{}
	}
	sorted := t.Books()
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// DefaultFilter selects the whole table: the full price range and every
// rating present.
func (t *Table) DefaultFilter() Filter {
	f := Filter{Ratings: []int{}}
	if t.Len() == 0 {
		return f
	}
	summary := t.Summary()
	f.PriceMin, f.PriceMax = summary.MinPrice, summary.MaxPrice
	for _, rc := range t.RatingCounts() {
		f.Ratings = append(f.Ratings, rc.Rating)
	}
	return f
}

// Filter returns the rows whose price lies in [PriceMin, PriceMax] and whose
// rating is in Ratings, preserving order.
func (t *Table) Filter(f Filter) (*Table, error) {
	if f.PriceMin > f.PriceMax {
		return nil, fmt.Errorf("%w: %v > %v", ErrInvalidRange, f.PriceMin, f.PriceMax)
	}
	if t.Len() == 0 || (f.Ratings != nil && len(f.Ratings) == 0) {
		return NewTable(nil), nil
	}

	predicates := []dataframe.F{
		{Colname: colPrice, Comparator: series.GreaterEq, Comparando: f.PriceMin},
		{Colname: colPrice, Comparator: series.LessEq, Comparando: f.PriceMax},
	}
	if f.Ratings != nil {
		predicates = append(predicates, dataframe.F{Colname: colRating, Comparator: series.In, Comparando: f.Ratings})
	}

	df := t.frame()
	for _, predicate := range predicates {
		if df.Nrow() == 0 {
			return NewTable(nil), nil
		}
		// Separate Filter calls are AND-ed; one call with several F is OR-ed.
		df = df.Filter(predicate)
		if df.Err != nil {
			return nil, fmt.Errorf("filter on %s: %w", predicate.Colname, df.Err)
		}
	}
	if df.Nrow() == 0 {
		return NewTable(nil), nil
	}

	rows, err := df.Col(colIdx).Int()
	if err != nil {
		return nil, fmt.Errorf("read filtered rows: %w", err)
	}
	out := make([]*models.Book, 0, len(rows))
	for _, i := range rows {
		out = append(out, t.books[i])
	}
	return &Table{books: out}, nil
}

// WriteCSV re-exports the table as plain UTF-8 CSV with the persisted header.
func (t *Table) WriteCSV(w io.Writer) error {
	return pipeline.WriteCSV(w, t.books)
}

func (t *Table) frame() dataframe.DataFrame {
	idx := make([]int, len(t.books))
	prices := make([]float64, len(t.books))
	ratings := make([]int, len(t.books))
	for i, book := range t.books {
		idx[i] = i
		prices[i] = book.Price
		ratings[i] = book.Rating
	}
	return dataframe.New(
		series.New(idx, series.Int, colIdx),
		series.New(prices, series.Float, colPrice),
		series.New(ratings, series.Int, colRating),
	)
}

package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"

	"github.com/aluiziolira/books-analytics/analytics"
	"github.com/aluiziolira/books-analytics/models"
)

const indexTemplate = "index.html"

//go:embed templates/*.html
var templateFS embed.FS

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type indexView struct {
	DataFile     string
	DefaultPages int
	MinPages     int
	MaxPages     int
	Notice       string
	Warning      string

	HasData      bool
	Overall      analytics.Summary
	Filtered     analytics.Summary
	Correlation  string
	RatingCounts []analytics.RatingCount
	TopRated     []*models.Book
	TopPriced    []*models.Book
	Histogram    []histBar
	Box          analytics.Box

	Gallery     [][]analytics.GalleryItem
	GallerySize int
	MinGallery  int
	MaxGallery  int

	PriceMin      float64
	PriceMax      float64
	PriceFloor    float64
	PriceCeil     float64
	RatingOptions []ratingOption
	Rows          []*models.Book
	CSVLink       template.URL
	XLSXLink      template.URL
	SummaryLink   template.URL
}

type histBar struct {
	Lower  float64
	Upper  float64
	Count  int
	Height float64
}

type ratingOption struct {
	Value    int
	Selected bool
}

func (v *indexView) populate(table, filtered *analytics.Table, sel selection) {
	v.HasData = true
	v.Overall = table.Summary()
	v.Filtered = filtered.Summary()
	v.Correlation = formatCorrelation(table.PriceRatingCorrelation())
	v.RatingCounts = table.RatingCounts()
	v.TopRated = table.TopByRating(topN)
	v.TopPriced = table.TopByPrice(topN)
	v.Box = table.PriceBox()
	v.Histogram = histogramBars(table.PriceHistogram(analytics.DefaultHistogramBins))

	v.GallerySize = sel.gallery
	v.MinGallery, v.MaxGallery = minGallery, maxGallery
	v.Gallery = chunk(table.Gallery(sel.gallery), galleryPerRow)

	v.PriceMin, v.PriceMax = sel.filter.PriceMin, sel.filter.PriceMax
	v.PriceFloor, v.PriceCeil = v.Overall.MinPrice, v.Overall.MaxPrice
	selected := make(map[int]bool, len(sel.filter.Ratings))
	for _, r := range sel.filter.Ratings {
		selected[r] = true
	}
	for _, rc := range v.RatingCounts {
		v.RatingOptions = append(v.RatingOptions, ratingOption{
			Value:    rc.Rating,
			Selected: sel.filter.Ratings == nil || selected[rc.Rating],
		})
	}
	v.Rows = filtered.Books()
	query := encodeFilter(sel.filter)
	v.CSVLink = template.URL("/download.csv?" + query)
	v.XLSXLink = template.URL("/download.xlsx?" + query)
	v.SummaryLink = template.URL("/api/summary?" + query)
}

func histogramBars(bins []analytics.Bin) []histBar {
	peak := 0
	for _, bin := range bins {
		if bin.Count > peak {
			peak = bin.Count
		}
	}
	bars := make([]histBar, 0, len(bins))
	for _, bin := range bins {
		height := 0.0
		if peak > 0 {
			height = float64(bin.Count) / float64(peak) * 100
		}
		bars = append(bars, histBar{Lower: bin.Lower, Upper: bin.Upper, Count: bin.Count, Height: height})
	}
	return bars
}

func chunk(items []analytics.GalleryItem, size int) [][]analytics.GalleryItem {
	var rows [][]analytics.GalleryItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		rows = append(rows, items[start:end])
	}
	return rows
}

// encodeFilter renders a filter as the query string understood by parseSelection.
func encodeFilter(f analytics.Filter) string {
	q := url.Values{}
	q.Set("price_min", strconv.FormatFloat(f.PriceMin, 'f', -1, 64))
	q.Set("price_max", strconv.FormatFloat(f.PriceMax, 'f', -1, 64))
	if f.Ratings != nil {
		q.Set("filtered", "1")
		for _, r := range f.Ratings {
			q.Add("rating", strconv.Itoa(r))
		}
	}
	return q.Encode()
}

func formatCorrelation(corr float64) string {
	if math.IsNaN(corr) {
		return "n/a"
	}
	return strconv.FormatFloat(corr, 'f', 3, 64)
}

type summaryResponse struct {
	DataFile string         `json:"data_file"`
	Filter   filterResponse `json:"filter"`
	All      tableStats     `json:"all"`
	Filtered tableStats     `json:"filtered"`
}

type filterResponse struct {
	PriceMin float64 `json:"price_min"`
	PriceMax float64 `json:"price_max"`
	Ratings  []int   `json:"ratings"`
}

type tableStats struct {
	Summary      analytics.Summary       `json:"summary"`
	Correlation  *float64                `json:"correlation"`
	RatingCounts []analytics.RatingCount `json:"rating_counts"`
	TopByRating  []bookRow               `json:"top_by_rating"`
	TopByPrice   []bookRow               `json:"top_by_price"`
	Histogram    []analytics.Bin         `json:"histogram"`
	Box          analytics.Box           `json:"box"`
}

type bookRow struct {
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Rating int     `json:"rating"`
	URL    string  `json:"url"`
}

func newTableStats(table *analytics.Table) tableStats {
	stats := tableStats{
		Summary:      table.Summary(),
		RatingCounts: table.RatingCounts(),
		TopByRating:  bookRows(table.TopByRating(topN)),
		TopByPrice:   bookRows(table.TopByPrice(topN)),
		Histogram:    table.PriceHistogram(analytics.DefaultHistogramBins),
		Box:          table.PriceBox(),
	}
	// NaN has no JSON encoding; undefined correlation is null.
	if corr := table.PriceRatingCorrelation(); !math.IsNaN(corr) {
		stats.Correlation = &corr
	}
	return stats
}

func bookRows(books []*models.Book) []bookRow {
	rows := make([]bookRow, 0, len(books))
	for _, b := range books {
		rows = append(rows, bookRow{Title: b.Title, Price: b.Price, Rating: b.Rating, URL: b.URL})
	}
	return rows
}

// jsonSerializer plugs jsoniter into echo's JSON responses and binding.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

type renderer struct {
	templates *template.Template
}

func newRenderer() (*renderer, error) {
	funcs := template.FuncMap{
		"money": func(v float64) string { return fmt.Sprintf("£%.2f", v) },
		"fixed": func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"add":   func(a, b int) int { return a + b },
	}
	templates, err := template.New("dashboard").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard templates: %w", err)
	}
	return &renderer{templates: templates}, nil
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

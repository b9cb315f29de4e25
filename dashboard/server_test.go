package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/books-analytics/config"
	"github.com/aluiziolira/books-analytics/models"
	"github.com/aluiziolira/books-analytics/pipeline"
)

type fakeScraper struct {
	mu    sync.Mutex
	calls []int
	books []*models.Book
}

func (f *fakeScraper) ScrapeAll(_ context.Context, maxPages int) *models.ScraperResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, maxPages)
	return &models.ScraperResult{Books: f.books, PageCount: maxPages, StopReason: models.StopMaxPages}
}

func fixtureBooks() []*models.Book {
	return []*models.Book{
		{Title: "Cheap Five", Price: 9.99, Rating: 5, Availability: "In stock", URL: "http://example.test/1", ImageURL: "http://example.test/1.jpg", UPC: "u1"},
		{Title: "Ten Four", Price: 10.00, Rating: 4, Availability: "In stock", URL: "http://example.test/2", ImageURL: "http://example.test/2.jpg", UPC: "u2"},
		{Title: "Mid Three", Price: 15.50, Rating: 3, Availability: "In stock", URL: "http://example.test/3", ImageURL: models.NotAvailable, UPC: "u3"},
		{Title: "Twenty Five", Price: 20.00, Rating: 5, Availability: "In stock", URL: "http://example.test/4", ImageURL: "http://example.test/4.jpg", UPC: "u4"},
		{Title: "Pricey Four", Price: 25.00, Rating: 4, Availability: "In stock", URL: "http://example.test/5", ImageURL: "http://example.test/5.jpg", UPC: "u5"},
	}
}

func newTestServer(t *testing.T, withData bool, scraper Scraper) (*Server, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputFile = filepath.Join(t.TempDir(), "books_data.csv")
	if withData {
		require.NoError(t, pipeline.SaveCSV(cfg.OutputFile, fixtureBooks()))
	}

	s, err := New(cfg, scraper, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	return s, cfg
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexWithoutDataShowsWarning(t *testing.T) {
	s, _ := newTestServer(t, false, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), noDataWarning)
	assert.NotContains(t, rec.Body.String(), "Total books")
}

func TestIndexRendersStatistics(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/?price_min=10&price_max=20&rating=4&rating=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Total books<strong>5</strong>")
	assert.Contains(t, body, "Filtered results: 2 books")
	assert.Contains(t, body, "£15.00")
	assert.Contains(t, body, "Image not available")
	assert.Contains(t, body, "/download.csv?filtered=1")
}

func TestIndexRejectsBadFilter(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	for _, target := range []string{"/?price_min=abc", "/?price_min=30&price_max=10", "/?rating=9"} {
		rec := do(s, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDownloadCSVFiltered(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/download.csv?price_min=10&price_max=20&rating=4&rating=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "books_filtered.csv")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Ten Four", records[1][0])
	assert.Equal(t, "Twenty Five", records[2][0])
}

func TestDownloadCSVEmptySelection(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/download.csv?filtered=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDownloadWithoutData(t *testing.T) {
	s, _ := newTestServer(t, false, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/download.csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadXLSX(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/download.xlsx", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "books_filtered.xlsx")
	// xlsx files are zip archives.
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestSummaryAPI(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/summary?price_min=10&price_max=20&rating=4&rating=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, []int{4, 5}, resp.Filter.Ratings)
	assert.Equal(t, 5, resp.All.Summary.Count)
	assert.Equal(t, 2, resp.Filtered.Summary.Count)
	assert.InDelta(t, 15.0, resp.Filtered.Summary.MeanPrice, 1e-9)
	require.NotNil(t, resp.All.Correlation)
	require.Len(t, resp.All.TopByPrice, 5)
	assert.Equal(t, "Pricey Four", resp.All.TopByPrice[0].Title)
	// Both filtered rows are priced differently but rated 4 and 5: correlation defined.
	assert.NotNil(t, resp.Filtered.Correlation)
}

func TestSummaryAPIWithoutData(t *testing.T) {
	s, _ := newTestServer(t, false, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/summary", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, noDataWarning, body["error"])
}

func TestSummaryAPIRejectsBadFilter(t *testing.T) {
	s, _ := newTestServer(t, true, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/summary?price_min=30&price_max=10", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestScrapeReplacesDataFile(t *testing.T) {
	scraper := &fakeScraper{books: fixtureBooks()[:2]}
	s, cfg := newTestServer(t, true, scraper)

	// Warm the cache with the five-row file.
	require.Equal(t, http.StatusOK, do(s, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	form := url.Values{"pages": {"2"}}
	req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(s, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?scraped=2", rec.Header().Get("Location"))
	assert.Equal(t, []int{2}, scraper.calls)

	books, err := pipeline.LoadCSV(cfg.OutputFile)
	require.NoError(t, err)
	assert.Len(t, books, 2)

	page := do(s, httptest.NewRequest(http.MethodGet, "/?scraped=2", nil)).Body.String()
	assert.Contains(t, page, "Total books<strong>2</strong>")
	assert.Contains(t, page, "2 books scraped.")
}

func TestScrapeDefaultsAndValidation(t *testing.T) {
	scraper := &fakeScraper{}
	s, cfg := newTestServer(t, false, scraper)

	rec := do(s, httptest.NewRequest(http.MethodPost, "/scrape", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []int{cfg.DashboardPages}, scraper.calls)

	// An empty scrape keeps the (missing) data file untouched.
	_, err := os.Stat(cfg.OutputFile)
	assert.True(t, os.IsNotExist(err))

	for _, pages := range []string{"0", "51", "x"} {
		req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader("pages="+pages))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusBadRequest, do(s, req).Code, pages)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadTableCachesUntilFileChanges(t *testing.T) {
	s, cfg := newTestServer(t, true, nil)

	first, err := s.loadTable()
	require.NoError(t, err)
	again, err := s.loadTable()
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, pipeline.SaveCSV(cfg.OutputFile, fixtureBooks()[:1]))
	reloaded, err := s.loadTable()
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

package dashboard

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/aluiziolira/books-analytics/analytics"
)

const (
	minPages             = 1
	maxPages             = 50
	minGallery           = 5
	maxGallery           = 50
	defaultGallery       = 20
	galleryPerRow        = 5
	topN                 = 10
	filteredFileName     = "books_filtered.csv"
	filteredWorkbookName = "books_filtered.xlsx"

	noDataWarning = "No data found. Run a scrape first."
	emptyNotice   = "The data file has no rows. Use the scrape form to collect data."
)

// selection is a parsed filter request.
type selection struct {
	filter  analytics.Filter
	gallery int
}

func (s *Server) handleIndex(c echo.Context) error {
	view := indexView{
		DataFile:     s.dataFile,
		DefaultPages: s.pages,
		MinPages:     minPages,
		MaxPages:     maxPages,
		Notice:       scrapeNotice(c.QueryParam("scraped")),
	}

	table, err := s.loadTable()
	if errors.Is(err, ErrNoData) {
		view.Warning = noDataWarning
		return c.Render(http.StatusOK, indexTemplate, view)
	}
	if err != nil {
		return err
	}
	if table.Len() == 0 {
		view.Warning = emptyNotice
		return c.Render(http.StatusOK, indexTemplate, view)
	}

	sel, err := parseSelection(c.QueryParams(), table)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	filtered, err := table.Filter(sel.filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}

	view.populate(table, filtered, sel)
	return c.Render(http.StatusOK, indexTemplate, view)
}

func (s *Server) handleScrape(c echo.Context) error {
	pages := s.pages
	if raw := c.FormValue("pages"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < minPages || value > maxPages {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("pages must be an integer between %d and %d", minPages, maxPages))
		}
		pages = value
	}

	result, err := s.scrape(c.Request().Context(), pages)
	if err != nil {
		s.log.Error("dashboard scrape failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return c.Redirect(http.StatusSeeOther, "/?scraped="+strconv.Itoa(result.TotalCount()))
}

func (s *Server) handleDownloadCSV(c echo.Context) error {
	filtered, err := s.filteredTable(c)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filteredFileName))
	res.WriteHeader(http.StatusOK)
	return filtered.WriteCSV(res)
}

func (s *Server) handleDownloadXLSX(c echo.Context) error {
	filtered, err := s.filteredTable(c)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filteredWorkbookName))
	res.WriteHeader(http.StatusOK)
	return writeXLSX(res, filtered.Books())
}

func (s *Server) handleSummary(c echo.Context) error {
	table, err := s.loadTable()
	if errors.Is(err, ErrNoData) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": noDataWarning})
	}
	if err != nil {
		return err
	}

	sel, err := parseSelection(c.QueryParams(), table)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	filtered, err := table.Filter(sel.filter)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, summaryResponse{
		DataFile: s.dataFile,
		Filter: filterResponse{
			PriceMin: sel.filter.PriceMin,
			PriceMax: sel.filter.PriceMax,
			Ratings:  sel.filter.Ratings,
		},
		All:      newTableStats(table),
		Filtered: newTableStats(filtered),
	})
}

// filteredTable loads the data file and applies the request's filter.
func (s *Server) filteredTable(c echo.Context) (*analytics.Table, error) {
	table, err := s.loadTable()
	if errors.Is(err, ErrNoData) {
		return nil, echo.NewHTTPError(http.StatusNotFound, noDataWarning)
	}
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(c.QueryParams(), table)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	filtered, err := table.Filter(sel.filter)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return filtered, nil
}

// parseSelection reads price_min, price_max, rating and gallery. Missing
// bounds default to the table's price range and a missing rating list selects
// every rating, unless filtered=1 marks an explicit empty selection.
func parseSelection(q url.Values, table *analytics.Table) (selection, error) {
	sel := selection{filter: table.DefaultFilter(), gallery: defaultGallery}

	var err error
	if sel.filter.PriceMin, err = floatParam(q, "price_min", sel.filter.PriceMin); err != nil {
		return selection{}, err
	}
	if sel.filter.PriceMax, err = floatParam(q, "price_max", sel.filter.PriceMax); err != nil {
		return selection{}, err
	}

	if raw, present := q["rating"]; present || q.Get("filtered") == "1" {
		ratings := make([]int, 0, len(raw))
		for _, value := range raw {
			rating, err := strconv.Atoi(value)
			if err != nil || rating < 0 || rating > 5 {
				return selection{}, fmt.Errorf("rating must be an integer between 0 and 5, got %q", value)
			}
			ratings = append(ratings, rating)
		}
		sel.filter.Ratings = ratings
	}

	if raw := q.Get("gallery"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return selection{}, fmt.Errorf("gallery must be an integer, got %q", raw)
		}
		sel.gallery = clamp(n, minGallery, maxGallery)
	}
	return sel, nil
}

func floatParam(q url.Values, name string, fallback float64) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return value, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func scrapeNotice(raw string) string {
	if raw == "" {
		return ""
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return ""
	}
	if n == 0 {
		return "The scrape returned no books; the existing data file was kept."
	}
	return fmt.Sprintf("%d books scraped.", n)
}

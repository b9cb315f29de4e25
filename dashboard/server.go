// Package dashboard serves the reporting web UI over the persisted table.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aluiziolira/books-analytics/analytics"
	"github.com/aluiziolira/books-analytics/config"
	"github.com/aluiziolira/books-analytics/logger"
	"github.com/aluiziolira/books-analytics/models"
	"github.com/aluiziolira/books-analytics/pipeline"
)

// ErrNoData is returned when the data file does not exist yet.
var ErrNoData = errors.New("dashboard: no data file")

// Scraper runs a fresh scrape for the dashboard.
type Scraper interface {
	ScrapeAll(ctx context.Context, maxPages int) *models.ScraperResult
}

// Server is the dashboard HTTP server.
type Server struct {
	echo     *echo.Echo
	dataFile string
	pages    int
	scraper  Scraper
	log      *zap.Logger

	cache    *lru.Cache[cacheKey, *analytics.Table]
	scrapeMu sync.Mutex
}

// cacheKey identifies one version of the data file.
type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// New wires routes for the data file named by cfg.OutputFile. registry may be
// nil, in which case /metrics is not served.
func New(cfg *config.Config, scraper Scraper, registry *prometheus.Registry, log *zap.Logger) (*Server, error) {
	cache, err := lru.New[cacheKey, *analytics.Table](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create table cache: %w", err)
	}
	renderer, err := newRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:     echo.New(),
		dataFile: cfg.OutputFile,
		pages:    cfg.DashboardPages,
		scraper:  scraper,
		log:      logger.OrNop(log),
		cache:    cache,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.JSONSerializer = jsonSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error),
			)
			return nil
		},
	}))

	e.GET("/", s.handleIndex)
	e.POST("/scrape", s.handleScrape)
	e.GET("/download.csv", s.handleDownloadCSV)
	e.GET("/download.xlsx", s.handleDownloadXLSX)
	e.GET("/api/summary", s.handleSummary)
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("dashboard listening", zap.String("addr", addr), zap.String("data_file", s.dataFile))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// loadTable reads the data file, reusing the cached table while the file is
// unchanged.
func (s *Server) loadTable() (*analytics.Table, error) {
	info, err := os.Stat(s.dataFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("stat data file: %w", err)
	}

	key := cacheKey{path: s.dataFile, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if table, ok := s.cache.Get(key); ok {
		return table, nil
	}

	books, err := pipeline.LoadCSV(s.dataFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	table := analytics.NewTable(books)
	s.cache.Add(key, table)
	s.log.Debug("loaded data file", zap.String("path", s.dataFile), zap.Int("rows", table.Len()))
	return table, nil
}

// scrape runs a new scrape and replaces the data file when it produced rows.
func (s *Server) scrape(ctx context.Context, pages int) (*models.ScraperResult, error) {
	if s.scraper == nil {
		return nil, fmt.Errorf("scraping is not configured")
	}

	s.scrapeMu.Lock()
	defer s.scrapeMu.Unlock()

	started := time.Now()
	result := s.scraper.ScrapeAll(ctx, pages)
	s.log.Info("dashboard scrape finished",
		zap.Int("pages", pages),
		zap.Int("books", result.TotalCount()),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Duration("duration", time.Since(started)),
	)
	if result.TotalCount() == 0 {
		return result, nil
	}

	if err := pipeline.SaveCSV(s.dataFile, result.Books); err != nil {
		return result, fmt.Errorf("save scraped data: %w", err)
	}
	s.cache.Purge()
	return result, nil
}

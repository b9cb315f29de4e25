package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aluiziolira/books-analytics/config"
	"github.com/aluiziolira/books-analytics/logger"
	"github.com/aluiziolira/books-analytics/models"
	"github.com/aluiziolira/books-analytics/parser"
	"github.com/aluiziolira/books-analytics/pipeline"
)

const (
	pageStateKey   = "page_state"
	detailStateKey = "detail_state"
	statusKey      = "status"
	startKey       = "start"
)

var (
	errSinkClosed  = errors.New("output sink rejected record")
	errEmptyPage   = errors.New("no listings on page")
	errDetailNoDOM = errors.New("detail page returned no html")
)

// Scraper walks the catalogue one page at a time. It owns the collection of
// records gathered by the current run and is not safe for concurrent use.
type Scraper struct {
	cfg     *config.Config
	baseURL *url.URL
	listing *colly.Collector
	detail  *colly.Collector
	log     *zap.Logger
	Metrics *Metrics

	books          []*models.Book
	requestCount   int
	errorCount     int
	detailDefaults int
	errorsByType   map[string]int

	now func() time.Time
}

type listingEntry struct {
	listing models.Listing
	err     error
}

type pageState struct {
	entries []listingEntry
}

type detailState struct {
	details models.Details
	parsed  bool
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, log *zap.Logger) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	listing := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	listing.SetRequestTimeout(cfg.Timeout)
	listing.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	listing.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	detail := listing.Clone()
	detail.IgnoreRobotsTxt = listing.IgnoreRobotsTxt

	s := &Scraper{
		cfg:          cfg,
		baseURL:      parsed,
		listing:      listing,
		detail:       detail,
		log:          logger.OrNop(log),
		Metrics:      NewMetrics(),
		errorsByType: make(map[string]int),
		now:          time.Now,
	}
	s.configureHandlers()
	return s, nil
}

// WithTransport replaces the HTTP transport used for every request.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.listing.WithTransport(rt)
	s.detail.WithTransport(rt)
}

// Run scrapes up to cfg.MaxPages pages and streams each record through p as
// soon as it is complete.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is nil")
	}
	result := s.scrape(ctx, s.cfg.MaxPages, p.Process)
	if result.StopReason == models.StopSinkClosed {
		return result, fmt.Errorf("stream records: %w", result.StopErr)
	}
	return result, nil
}

// ScrapeAll walks pages 1..maxPages, or until a page fails when maxPages is
// zero or negative, and returns everything collected.
func (s *Scraper) ScrapeAll(ctx context.Context, maxPages int) *models.ScraperResult {
	return s.scrape(ctx, maxPages, nil)
}

// FetchPage scrapes a single listing page into the current collection.
func (s *Scraper) FetchPage(ctx context.Context, page int) bool {
	if _, err := s.fetchPage(ctx, page, nil); err != nil {
		s.log.Warn("page scrape failed", zap.Int("page", page), zap.Error(err))
		return false
	}
	return true
}

// FetchItemDetails reads the detail page at detailURL. It never fails: any
// problem yields default values with a non-complete status.
func (s *Scraper) FetchItemDetails(detailURL string) models.Details {
	state := &detailState{}
	cctx := colly.NewContext()
	cctx.Put(detailStateKey, state)

	var details models.Details
	if err := s.detail.Request(http.MethodGet, detailURL, nil, cctx, nil); err != nil {
		classified := classifyError(err, statusFrom(cctx))
		s.countError(classified)
		details = models.DefaultDetails(classified)
	} else if !state.parsed {
		details = models.DefaultDetails(errDetailNoDOM)
	} else {
		details = state.details
	}

	if details.Status != models.DetailComplete {
		s.detailDefaults++
		s.Metrics.IncDetailDefault(details.Status.String())
		s.log.Warn("detail page incomplete",
			zap.String("url", detailURL),
			zap.String("status", details.Status.String()),
			zap.Error(details.Err),
		)
	}
	return details
}

// Books returns a copy of the records collected so far.
func (s *Scraper) Books() []*models.Book {
	out := make([]*models.Book, len(s.books))
	copy(out, s.books)
	return out
}

// PageURL builds the catalogue URL for a page number.
func (s *Scraper) PageURL(page int) string {
	return s.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("catalogue/page-%d.html", page)}).String()
}

func (s *Scraper) scrape(ctx context.Context, maxPages int, sink func(...*models.Book) error) *models.ScraperResult {
	if ctx == nil {
		ctx = context.Background()
	}
	s.reset()

	result := &models.ScraperResult{
		RunID:     uuid.NewString(),
		StartTime: s.now(),
	}
	log := s.log.With(zap.String("run_id", result.RunID))
	log.Info("starting scrape",
		zap.String("base_url", s.baseURL.String()),
		zap.Int("max_pages", maxPages),
	)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			result.StopReason, result.StopErr = models.StopCanceled, err
			break
		}

		log.Info("scraping page", zap.Int("page", page))
		items, err := s.fetchPage(ctx, page, sink)
		if err == nil && items == 0 && maxPages <= 0 {
			// Without a page bound an empty page is the only end of the catalogue.
			err = ErrParse{URL: s.PageURL(page), Err: errEmptyPage}
			s.countError(err)
		}
		if err != nil {
			result.StopReason, result.StopErr = s.stopReason(ctx, err), err
			log.Info("stopping scrape",
				zap.Int("page", page),
				zap.String("reason", string(result.StopReason)),
				zap.Error(err),
			)
			break
		}
		result.PageCount++

		if maxPages > 0 && page >= maxPages {
			result.StopReason = models.StopMaxPages
			break
		}
		if err := sleepContext(ctx, s.cfg.PageDelay); err != nil {
			result.StopReason, result.StopErr = models.StopCanceled, err
			break
		}
	}

	result.Books = s.Books()
	result.EndTime = s.now()
	result.RequestCount = s.requestCount
	result.ErrorCount = s.errorCount
	result.DetailDefaults = s.detailDefaults
	result.ErrorsByType = s.snapshotErrors()

	log.Info("scrape finished",
		zap.Int("books", len(result.Books)),
		zap.Int("pages", result.PageCount),
		zap.Duration("duration", result.Duration()),
	)
	return result
}

// fetchPage scrapes one listing page and reports how many records it yielded.
// A page with no listings is not an error.
func (s *Scraper) fetchPage(ctx context.Context, page int, sink func(...*models.Book) error) (int, error) {
	target := s.PageURL(page)
	state := &pageState{}
	cctx := colly.NewContext()
	cctx.Put(pageStateKey, state)

	if err := s.listing.Request(http.MethodGet, target, nil, cctx, nil); err != nil {
		classified := classifyError(err, statusFrom(cctx))
		s.countError(classified)
		return 0, classified
	}
	s.Metrics.IncPages()

	items := 0
	for _, entry := range state.entries {
		if entry.err != nil {
			err := ErrParse{URL: target, Err: entry.err}
			s.countError(err)
			return items, err
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}

		details := s.FetchItemDetails(entry.listing.URL)
		book := models.NewBook(entry.listing, details, s.now())
		s.books = append(s.books, book)
		items++
		s.Metrics.IncItems()
		s.log.Info("scraped item", zap.String("title", book.Title), zap.Int("page", page))

		if sink != nil {
			if err := sink(book); err != nil {
				return items, fmt.Errorf("%w: %w", errSinkClosed, err)
			}
		}
	}
	return items, nil
}

func (s *Scraper) configureHandlers() {
	s.instrument(s.listing, "listing")
	s.instrument(s.detail, "detail")

	s.listing.OnHTML(parser.ListingSelector, func(e *colly.HTMLElement) {
		state, ok := e.Request.Ctx.GetAny(pageStateKey).(*pageState)
		if !ok {
			return
		}
		listing, err := parser.ParseListing(e.DOM, e.Request.URL, s.baseURL)
		state.entries = append(state.entries, listingEntry{listing: listing, err: err})
	})

	s.detail.OnHTML("html", func(e *colly.HTMLElement) {
		state, ok := e.Request.Ctx.GetAny(detailStateKey).(*detailState)
		if !ok || state.parsed {
			return
		}
		state.details = parser.ParseDetails(e.DOM)
		state.parsed = true
	})
}

func (s *Scraper) instrument(c *colly.Collector, phase string) {
	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(startKey, time.Now())
		s.requestCount++
		s.Metrics.IncRequest(phase)
		s.log.Debug("request", zap.String("phase", phase), zap.String("url", r.URL.String()))
	})

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(statusKey, r.StatusCode)
		s.observe(r.Ctx)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(statusKey, r.StatusCode)
		s.observe(r.Ctx)
		target := ""
		if r.Request != nil && r.Request.URL != nil {
			target = r.Request.URL.String()
		}
		s.log.Debug("request error",
			zap.String("phase", phase),
			zap.String("url", target),
			zap.Int("status", r.StatusCode),
			zap.Error(err),
		)
	})
}

func (s *Scraper) observe(cctx *colly.Context) {
	if start, ok := cctx.GetAny(startKey).(time.Time); ok {
		s.Metrics.ObserveDuration(time.Since(start))
	}
}

func (s *Scraper) countError(err error) {
	category := errorTypeLabel(err)
	s.errorCount++
	s.errorsByType[category]++
	s.Metrics.IncError(category)
}

func (s *Scraper) stopReason(ctx context.Context, err error) models.StopReason {
	var parseErr ErrParse
	switch {
	case ctx.Err() != nil:
		return models.StopCanceled
	case errors.Is(err, errSinkClosed):
		return models.StopSinkClosed
	case errors.As(err, &parseErr):
		return models.StopParseError
	default:
		return models.StopPageUnavailable
	}
}

func (s *Scraper) reset() {
	s.books = nil
	s.requestCount = 0
	s.errorCount = 0
	s.detailDefaults = 0
	s.errorsByType = make(map[string]int)
}

func (s *Scraper) snapshotErrors() map[string]int {
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func statusFrom(cctx *colly.Context) int {
	if status, ok := cctx.GetAny(statusKey).(int); ok {
		return status
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

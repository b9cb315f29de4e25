package models

import "time"

// StopReason explains why a scrape run ended.
type StopReason string

const (
	StopMaxPages        StopReason = "max_pages"
	StopPageUnavailable StopReason = "page_unavailable"
	StopParseError      StopReason = "parse_error"
	StopCanceled        StopReason = "canceled"
	StopSinkClosed      StopReason = "sink_closed"
)

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	RunID          string
	Books          []*Book
	StartTime      time.Time
	EndTime        time.Time
	PageCount      int
	RequestCount   int
	ErrorCount     int
	DetailDefaults int
	ErrorsByType   map[string]int
	StopReason     StopReason
	StopErr        error
}

// TotalCount is the number of records collected by the run.
func (r *ScraperResult) TotalCount() int {
	if r == nil {
		return 0
	}
	return len(r.Books)
}

// Duration is the wall time of the run.
func (r *ScraperResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Package models defines data structures for the scraper and dashboard.
package models

import "time"

// NotAvailable is the sentinel stored in text fields that could not be scraped.
const NotAvailable = "N/A"

// Book is one persisted item record. The csv tags define the table header.
type Book struct {
	Title        string    `csv:"title" json:"title" gorm:"type:text;not null"`
	Price        float64   `csv:"price" json:"price" gorm:"not null"`
	Rating       int       `csv:"rating" json:"rating" gorm:"not null;index"`
	Availability string    `csv:"availability" json:"availability" gorm:"type:text"`
	URL          string    `csv:"url" json:"url" gorm:"primaryKey"`
	ImageURL     string    `csv:"image_url" json:"image_url" gorm:"type:text"`
	UPC          string    `csv:"upc" json:"upc" gorm:"type:varchar(32);index"`
	Reviews      int       `csv:"reviews" json:"reviews"`
	Description  string    `csv:"description" json:"description" gorm:"type:text"`
	ScrapedAt    time.Time `csv:"-" json:"scraped_at"`
}

// TableName specifies the table name for Book.
func (Book) TableName() string {
	return "books"
}

// Listing holds the fields read from one catalogue entry.
type Listing struct {
	Title        string
	Price        float64
	Rating       int
	Availability string
	URL          string
	ImageURL     string
}

// NewBook merges a listing with the fields fetched from its detail page.
func NewBook(l Listing, d Details, scrapedAt time.Time) *Book {
	availability := l.Availability
	if availability == "" {
		availability = d.Availability
	}
	if availability == "" {
		availability = NotAvailable
	}
	return &Book{
		Title:        l.Title,
		Price:        l.Price,
		Rating:       l.Rating,
		Availability: availability,
		URL:          l.URL,
		ImageURL:     l.ImageURL,
		UPC:          d.UPC,
		Reviews:      d.Reviews,
		Description:  d.Description,
		ScrapedAt:    scrapedAt,
	}
}

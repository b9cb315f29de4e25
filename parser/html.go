package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/books-analytics/models"
)

// Selectors for the catalogue markup.
const (
	ListingSelector     = "article.product_pod"
	productTableSel     = "table.table.table-striped"
	descriptionSel      = "div#product_description"
	starRatingSel       = "p.star-rating"
	priceSel            = "p.price_color"
	availabilitySel     = "p.instock.availability"
	titleLinkSel        = "h3 a"
	detailUPCKey        = "UPC"
	detailAvailKey      = "Availability"
	detailReviewsKey    = "Number of reviews"
	detailReviewDefault = "0"
)

// ErrMissingField is returned when a listing lacks a required element.
var ErrMissingField = errors.New("missing field")

// ParseListing extracts one catalogue entry. Detail links resolve against the
// page URL and images against the site base URL.
func ParseListing(sel *goquery.Selection, pageURL, baseURL *url.URL) (models.Listing, error) {
	link := sel.Find(titleLinkSel).First()
	if link.Length() == 0 {
		return models.Listing{}, fmt.Errorf("%w: title link", ErrMissingField)
	}

	title := strings.TrimSpace(link.AttrOr("title", ""))
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}
	if title == "" {
		return models.Listing{}, fmt.Errorf("%w: title", ErrMissingField)
	}

	href := strings.TrimSpace(link.AttrOr("href", ""))
	if href == "" {
		return models.Listing{}, fmt.Errorf("%w: link for %q", ErrMissingField, title)
	}
	detailURL, err := ResolveURL(pageURL, href)
	if err != nil {
		return models.Listing{}, fmt.Errorf("detail link for %q: %w", title, err)
	}

	priceText := strings.TrimSpace(sel.Find(priceSel).First().Text())
	price, err := ParsePrice(priceText)
	if err != nil {
		return models.Listing{}, fmt.Errorf("price for %q: %w", title, err)
	}

	ratingLabel := ""
	if classes := strings.Fields(sel.Find(starRatingSel).First().AttrOr("class", "")); len(classes) > 1 {
		ratingLabel = classes[1]
	}

	return models.Listing{
		Title:        title,
		Price:        price,
		Rating:       RatingToNumeric(ratingLabel),
		Availability: NormalizeAvailability(sel.Find(availabilitySel).First().Text()),
		URL:          detailURL,
		ImageURL:     imageURL(sel, baseURL),
	}, nil
}

func imageURL(sel *goquery.Selection, baseURL *url.URL) string {
	img := sel.Find("img").First()
	if img.Length() == 0 {
		return models.NotAvailable
	}
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		return models.NotAvailable
	}
	resolved, err := ResolveURL(baseURL, src)
	if err != nil {
		return models.NotAvailable
	}
	return resolved
}

// ParseDetails reads the product information table and description of a
// detail page. Missing pieces fall back to defaults and mark the result partial.
func ParseDetails(root *goquery.Selection) models.Details {
	info := make(map[string]string)
	table := root.Find(productTableSel).First()
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		info[strings.TrimSpace(th.Text())] = strings.TrimSpace(td.Text())
	})

	details := models.Details{
		UPC:          valueOr(info, detailUPCKey, models.NotAvailable),
		Availability: valueOr(info, detailAvailKey, models.NotAvailable),
		Description:  models.NotAvailable,
		Status:       models.DetailComplete,
	}
	if table.Length() == 0 {
		details.Status = models.DetailPartial
	}

	reviews, err := strconv.Atoi(valueOr(info, detailReviewsKey, detailReviewDefault))
	if err != nil || reviews < 0 {
		reviews = 0
		details.Status = models.DetailPartial
	}
	details.Reviews = reviews

	paragraph := root.Find(descriptionSel).First().NextAllFiltered("p").First()
	if paragraph.Length() > 0 {
		details.Description = strings.TrimSpace(paragraph.Text())
	} else {
		details.Status = models.DetailPartial
	}

	return details
}

func valueOr(info map[string]string, key, fallback string) string {
	if value, ok := info[key]; ok && value != "" {
		return value
	}
	return fallback
}

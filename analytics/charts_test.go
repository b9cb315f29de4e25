package analytics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/books-analytics/models"
)

func TestPriceHistogram(t *testing.T) {
	bins := fixtureTable().PriceHistogram(DefaultHistogramBins)

	require.Len(t, bins, DefaultHistogramBins)
	total := 0
	for _, bin := range bins {
		total += bin.Count
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, 1, bins[len(bins)-1].Count)
	assert.InDelta(t, 9.99, bins[0].Lower, 1e-9)
	assert.InDelta(t, 25.0, bins[len(bins)-1].Upper, 1e-9)
}

func TestPriceHistogramDegenerate(t *testing.T) {
	assert.Empty(t, NewTable(nil).PriceHistogram(10))

	constant := NewTable([]*models.Book{
		{Title: "a", Price: 5, URL: "a"},
		{Title: "b", Price: 5, URL: "b"},
	})
	bins := constant.PriceHistogram(10)
	require.Len(t, bins, 1)
	assert.Equal(t, 2, bins[0].Count)
}

func TestPriceBox(t *testing.T) {
	box := fixtureTable().PriceBox()

	assert.InDelta(t, 9.99, box.Min, 1e-9)
	assert.InDelta(t, 9.995, box.Q1, 1e-9)
	assert.InDelta(t, 15.5, box.Median, 1e-9)
	assert.InDelta(t, 22.5, box.Q3, 1e-9)
	assert.InDelta(t, 25.0, box.Max, 1e-9)
}

func TestGallery(t *testing.T) {
	long := strings.Repeat("x", 31)
	table := NewTable([]*models.Book{
		{Title: long, Price: 1, URL: "a", ImageURL: "http://example.test/a.jpg"},
		{Title: "Short", Price: 2, URL: "b", ImageURL: models.NotAvailable},
		{Title: "Third", Price: 3, URL: "c", ImageURL: "http://example.test/c.jpg"},
	})

	items := table.Gallery(2)
	require.Len(t, items, 2)
	assert.Equal(t, strings.Repeat("x", 30)+"...", items[0].Title)
	assert.True(t, items[0].HasImage())
	assert.Equal(t, "Short", items[1].Title)
	assert.False(t, items[1].HasImage())

	assert.Len(t, table.Gallery(50), 3)
	assert.Empty(t, table.Gallery(0))
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: strings.Repeat("a", 30), want: strings.Repeat("a", 30)},
		{in: strings.Repeat("é", 31), want: strings.Repeat("é", 30) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateTitle(tt.in))
	}
}

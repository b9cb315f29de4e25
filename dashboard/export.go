package dashboard

import (
	"fmt"
	"io"

	"github.com/360EntSecGroup-Skylar/excelize"

	"github.com/aluiziolira/books-analytics/models"
)

const workbookSheet = "books"

var workbookColumns = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}

var workbookHeader = []string{
	"title", "price", "rating", "availability", "url", "image_url", "upc", "reviews", "description",
}

// writeXLSX renders books as a single-sheet workbook using the CSV header.
func writeXLSX(w io.Writer, books []*models.Book) error {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", workbookSheet)

	for i, name := range workbookHeader {
		f.SetCellValue(workbookSheet, workbookColumns[i]+"1", name)
	}
	for r, b := range books {
		row := r + 2
		values := []interface{}{
			b.Title, b.Price, b.Rating, b.Availability, b.URL, b.ImageURL, b.UPC, b.Reviews, b.Description,
		}
		for i, value := range values {
			f.SetCellValue(workbookSheet, fmt.Sprintf("%s%d", workbookColumns[i], row), value)
		}
	}
	f.SetColWidth(workbookSheet, "A", "A", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

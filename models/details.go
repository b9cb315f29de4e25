package models

// DetailStatus tells how much of a detail page could be read.
type DetailStatus int

const (
	// DetailComplete means every detail field came from the page.
	DetailComplete DetailStatus = iota
	// DetailPartial means the page loaded but some fields hold defaults.
	DetailPartial
	// DetailDefaulted means the page could not be used at all.
	DetailDefaulted
)

func (s DetailStatus) String() string {
	switch s {
	case DetailComplete:
		return "complete"
	case DetailPartial:
		return "partial"
	case DetailDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Details is the result of fetching an item's detail page.
type Details struct {
	UPC          string
	Availability string
	Reviews      int
	Description  string
	Status       DetailStatus
	// Err is the cause when Status is DetailDefaulted.
	Err error
}

// DefaultDetails returns the placeholder values used when a detail page fails.
func DefaultDetails(cause error) Details {
	return Details{
		UPC:          NotAvailable,
		Availability: NotAvailable,
		Reviews:      0,
		Description:  NotAvailable,
		Status:       DetailDefaulted,
		Err:          cause,
	}
}

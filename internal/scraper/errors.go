package scraper

import (
	"errors"
	"fmt"
)

// ErrNoListingPage is returned when a source has no configured listing URL and
// discovery found no link matching the listing indicators.
var ErrNoListingPage = errors.New("no listing page found")

// FetchError reports a page that could not be retrieved by any configured path.
type FetchError struct {
	URL    string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

package scraper

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent is the desktop browser identity sent when none is
// configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// PageRenderer loads the raw markup for a URL. Both the plain HTTP path and
// the headless browser implement it.
type PageRenderer interface {
	Render(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a plain HTTP response needs a browser.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Fetcher returns parsed pages and locates listing pages on a site.
type Fetcher interface {
	Fetch(ctx context.Context, url string, preferHeadless bool) (*Page, error)
	DiscoverListingURL(ctx context.Context, baseURL string, indicators []string) (string, error)
}

// Extractor turns a parsed listing page into records.
type Extractor interface {
	Extract(doc *goquery.Document, sourceName, pageURL string) []Record
}

// Store persists records, page state, and the audit log.
type Store interface {
	// UpsertRecord inserts rec unless its CanonicalURL already exists and
	// reports whether a row was inserted.
	UpsertRecord(ctx context.Context, rec Record) (bool, error)
	// GetPageState returns nil without error when no state exists.
	GetPageState(ctx context.Context, sourceName string) (*PageState, error)
	UpsertPageState(ctx context.Context, state PageState) error
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	Statistics(ctx context.Context) (Statistics, error)
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	DeactivateRecord(ctx context.Context, canonicalURL string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

package sqlite

import (
	"database/sql"
	"time"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

type recordRow struct {
	ID           int64          `db:"id"`
	SourceName   string         `db:"source_name"`
	Title        string         `db:"title"`
	CanonicalURL string         `db:"canonical_url"`
	Category     string         `db:"category"`
	Description  sql.NullString `db:"description"`
	Locale       string         `db:"locale"`
	Deadline     sql.NullString `db:"deadline"`
	GroupName    sql.NullString `db:"group_name"`
	DiscoveredAt time.Time      `db:"discovered_at"`
	Active       bool           `db:"active"`
}

func (r recordRow) toRecord() scraper.Record {
	return scraper.Record{
		ID:           r.ID,
		SourceName:   r.SourceName,
		Title:        r.Title,
		CanonicalURL: r.CanonicalURL,
		Category:     scraper.Category(r.Category),
		Description:  r.Description.String,
		Locale:       r.Locale,
		Deadline:     r.Deadline.String,
		Group:        r.GroupName.String,
		DiscoveredAt: r.DiscoveredAt.UTC(),
		Active:       r.Active,
	}
}

type pageStateRow struct {
	SourceName         string    `db:"source_name"`
	ListingURL         string    `db:"listing_url"`
	ContentFingerprint string    `db:"content_fingerprint"`
	LastScraped        time.Time `db:"last_scraped"`
	LastModified       time.Time `db:"last_modified"`
	RecordCount        int       `db:"record_count"`
}

func (r pageStateRow) toState() scraper.PageState {
	return scraper.PageState{
		SourceName:         r.SourceName,
		ListingURL:         r.ListingURL,
		ContentFingerprint: r.ContentFingerprint,
		LastScraped:        r.LastScraped.UTC(),
		LastModified:       r.LastModified.UTC(),
		RecordCount:        r.RecordCount,
	}
}

type auditRow struct {
	ID           string    `db:"id"`
	SourceName   string    `db:"source_name"`
	Status       string    `db:"status"`
	Message      string    `db:"message"`
	RecordsFound int       `db:"records_found"`
	CreatedAt    time.Time `db:"created_at"`
}

type countRow struct {
	Label string `db:"label"`
	N     int    `db:"n"`
}

package scraper

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Category classifies a posting.
type Category string

// Supported posting categories.
const (
	CategoryResearch Category = "research"
	CategoryArtistic Category = "artistic"
	CategoryOther    Category = "other"
)

// Categories lists every category in classification order.
var Categories = []Category{CategoryResearch, CategoryArtistic, CategoryOther}

// ParseCategory converts user input into a Category.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryResearch, CategoryArtistic, CategoryOther:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// Source is a site to monitor. When ListingURL is empty the listing page is
// discovered from BaseURL on every run.
type Source struct {
	Name       string `json:"name" mapstructure:"name" csv:"name"`
	BaseURL    string `json:"base_url" mapstructure:"base_url" csv:"base_url"`
	ListingURL string `json:"listing_url,omitempty" mapstructure:"listing_url" csv:"listing_url,omitempty"`
	Country    string `json:"country,omitempty" mapstructure:"country" csv:"country,omitempty"`
	City       string `json:"city,omitempty" mapstructure:"city" csv:"city,omitempty"`
}

// Record is a single posting extracted from a listing page.
type Record struct {
	ID           int64     `json:"id" csv:"id"`
	SourceName   string    `json:"source_name" csv:"source_name"`
	Title        string    `json:"title" csv:"title"`
	CanonicalURL string    `json:"url" csv:"url"`
	Category     Category  `json:"category" csv:"category"`
	Description  string    `json:"description,omitempty" csv:"description,omitempty"`
	Locale       string    `json:"locale" csv:"locale"`
	Deadline     string    `json:"deadline,omitempty" csv:"deadline,omitempty"`
	Group        string    `json:"group,omitempty" csv:"group,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at" csv:"discovered_at"`
	Active       bool      `json:"active" csv:"active"`
}

// PageState is the per-source change-detection memory.
type PageState struct {
	SourceName         string    `json:"source_name"`
	ListingURL         string    `json:"listing_url"`
	ContentFingerprint string    `json:"content_fingerprint"`
	LastScraped        time.Time `json:"last_scraped"`
	LastModified       time.Time `json:"last_modified"`
	RecordCount        int       `json:"record_count"`
}

// AuditStatus is the outcome of processing one source.
type AuditStatus string

// Audit outcomes.
const (
	AuditSuccess   AuditStatus = "success"
	AuditUnchanged AuditStatus = "unchanged"
	AuditFailed    AuditStatus = "failed"
)

// AuditEntry records one source visit. Entries are never updated.
type AuditEntry struct {
	ID           string      `json:"id"`
	SourceName   string      `json:"source_name"`
	Status       AuditStatus `json:"status"`
	Message      string      `json:"message"`
	RecordsFound int         `json:"records_found"`
	Timestamp    time.Time   `json:"timestamp"`
}

// RecordFilter narrows QueryRecords. Zero values mean "no constraint"; Limit
// <= 0 returns everything.
type RecordFilter struct {
	Source     string
	Category   Category
	ActiveOnly bool
	Limit      int
}

// SourceCount pairs a source with its active record count.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Statistics summarizes the store.
type Statistics struct {
	TotalActive  int              `json:"total_active"`
	ByCategory   map[Category]int `json:"by_category"`
	TopSources   []SourceCount    `json:"top_sources"`
	RecentAudits int              `json:"recent_audits"`
}

// FetchRequest captures everything a PageRenderer needs to load a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the raw result of a PageRenderer.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Page is a parsed document ready for fingerprinting and extraction. Script,
// style, and noscript elements have already been removed.
type Page struct {
	URL          string
	StatusCode   int
	UsedHeadless bool
	Doc          *goquery.Document
}

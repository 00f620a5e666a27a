// Package extract turns a parsed listing page into posting records using an
// ordered chain of strategies.
package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/listingwatch/internal/changedetect"
	"github.com/JakeFAU/listingwatch/internal/keywords"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	defaultMinTitleLen       = 10
	defaultMaxTitleLen       = 200
	defaultMinRowTextLen     = 20
	defaultMinDescriptionLen = 20
	defaultMaxDescriptionLen = 500
	defaultContainerLimit    = 50
)

// Config tunes the length thresholds applied to candidates. Zero values use
// the defaults.
type Config struct {
	MinTitleLen       int
	MaxTitleLen       int
	MinRowTextLen     int
	MaxDescriptionLen int
	ContainerLimit    int
}

func (c Config) withDefaults() Config {
	if c.MinTitleLen <= 0 {
		c.MinTitleLen = defaultMinTitleLen
	}
	if c.MaxTitleLen <= 0 {
		c.MaxTitleLen = defaultMaxTitleLen
	}
	if c.MinRowTextLen <= 0 {
		c.MinRowTextLen = defaultMinRowTextLen
	}
	if c.MaxDescriptionLen <= 0 {
		c.MaxDescriptionLen = defaultMaxDescriptionLen
	}
	if c.ContainerLimit <= 0 {
		c.ContainerLimit = defaultContainerLimit
	}
	return c
}

// Extractor implements scraper.Extractor.
type Extractor struct {
	cfg        Config
	kw         keywords.Set
	clock      scraper.Clock
	strategies []strategy
}

// New builds an Extractor. A nil clock uses the system clock.
func New(cfg Config, kw keywords.Set, clock scraper.Clock) *Extractor {
	if clock == nil {
		clock = scraper.SystemClock{}
	}
	e := &Extractor{cfg: cfg.withDefaults(), kw: kw, clock: clock}
	e.strategies = []strategy{
		{name: "containers", find: e.containerCandidates},
		{name: "anchors", find: e.anchorCandidates},
		{name: "documents", find: e.documentCandidates},
		{name: "tables", find: e.tableCandidates},
	}
	return e
}

// Extract runs the strategies in order and returns the records of the first
// one that yields anything, deduplicated by canonical URL.
func (e *Extractor) Extract(doc *goquery.Document, sourceName, pageURL string) []scraper.Record {
	if doc == nil {
		return nil
	}
	base, _ := url.Parse(pageURL)
	region := changedetect.MainContent(doc)
	locale := changedetect.DetectLocale(changedetect.VisibleText(region), e.kw.LocaleWords())
	now := e.clock.Now()

	for _, s := range e.strategies {
		var records []scraper.Record
		seen := make(map[string]struct{})
		for _, c := range s.find(region) {
			rec, ok := e.build(c, base, pageURL, locale)
			if !ok {
				continue
			}
			if _, dup := seen[rec.CanonicalURL]; dup {
				continue
			}
			seen[rec.CanonicalURL] = struct{}{}
			rec.SourceName = sourceName
			rec.DiscoveredAt = now
			rec.Active = true
			records = append(records, rec)
		}
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

// build applies the shared sub-extractions to a candidate. Exclusion is
// checked before classification and always wins.
func (e *Extractor) build(c candidate, base *url.URL, pageURL, locale string) (scraper.Record, bool) {
	if !e.kw.HasJobTerm(c.matchText) || e.kw.IsExcluded(c.matchText) {
		return scraper.Record{}, false
	}
	title := c.title
	if title == "" {
		title = e.titleOf(c.sel)
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < e.cfg.MinTitleLen {
		return scraper.Record{}, false
	}
	target := c.href
	if target == "" {
		target = hrefOf(c.sel)
	}
	rec := scraper.Record{
		Title:        truncate(title, e.cfg.MaxTitleLen, ""),
		CanonicalURL: resolve(base, pageURL, target),
		Category:     e.kw.Classify(c.matchText, locale),
		Deadline:     findDeadline(c.fullText),
		Group:        findGroup(c.fullText),
		Locale:       locale,
	}
	if desc := collapse(c.fullText); desc != rec.Title && utf8.RuneCountInString(desc) >= defaultMinDescriptionLen {
		rec.Description = truncate(desc, e.cfg.MaxDescriptionLen, "...")
	}
	return rec, true
}

// titleOf prefers a heading, then a title-classed div or span, then the first
// text line long enough to be a title.
func (e *Extractor) titleOf(sel *goquery.Selection) string {
	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5"} {
		if h := sel.Find(tag).First(); h.Length() > 0 {
			if t := collapse(changedetect.VisibleText(h)); utf8.RuneCountInString(t) >= e.cfg.MinTitleLen {
				return t
			}
		}
	}
	titled := sel.Find("div, span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return titleClass.MatchString(class)
	}).First()
	if titled.Length() > 0 {
		if t := collapse(changedetect.VisibleText(titled)); utf8.RuneCountInString(t) >= e.cfg.MinTitleLen {
			return t
		}
	}
	for _, line := range changedetect.TextLines(sel) {
		if utf8.RuneCountInString(line) >= e.cfg.MinTitleLen {
			return line
		}
	}
	return ""
}

var titleClass = regexp.MustCompile(`(?i)title`)

// hrefOf finds the link target of an element: its own href, a descendant
// anchor, or a data attribute.
func hrefOf(sel *goquery.Selection) string {
	if goquery.NodeName(sel) == "a" {
		if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return href
		}
	}
	if href, ok := sel.Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return href
	}
	for _, attr := range []string{"data-url", "data-link", "data-href"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// resolve makes target absolute against the page URL. Empty or non-web
// targets fall back to the page itself.
func resolve(base *url.URL, pageURL, target string) string {
	target = strings.TrimSpace(target)
	if target == "" || base == nil {
		return pageURL
	}
	ref, err := url.Parse(target)
	if err != nil {
		return pageURL
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return pageURL
	}
	return abs.String()
}

var (
	deadlinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bewerbungsfrist[:\s]+(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`),
		regexp.MustCompile(`(?i)bewerbungsschluss[:\s]+(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`),
		regexp.MustCompile(`(?i)frist[:\s]+(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`),
		regexp.MustCompile(`(?i)\bbis[:\s]+(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`),
		regexp.MustCompile(`(?i)(?:deadline|closing date)[:\s]+(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`),
	}
	groupPattern = regexp.MustCompile(`(?i)(?:fakultät|faculty|department|fachbereich|institut)[: ]+([\p{L} &-]+)`)
)

func findDeadline(text string) string {
	for _, re := range deadlinePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func findGroup(text string) string {
	m := groupPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	group := strings.TrimSpace(m[1])
	if utf8.RuneCountInString(group) <= 3 {
		return ""
	}
	return truncate(group, 100, "")
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncate(text string, limit int, suffix string) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + suffix
}

// documentTitle derives a readable title from a document link's file name.
func documentTitle(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	name = strings.TrimSuffix(name, path.Ext(name))
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return collapse(strings.NewReplacer("_", " ", "-", " ", "+", " ").Replace(name))
}

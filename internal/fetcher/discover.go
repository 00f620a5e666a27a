package fetcher

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DiscoverListingURL fetches the site's base page and returns the first link
// whose text or target mentions a listing indicator. It returns "" with a nil
// error when the page loads but nothing matches.
func (f *Fetcher) DiscoverListingURL(ctx context.Context, baseURL string, indicators []string) (string, error) {
	page, err := f.Fetch(ctx, baseURL, false)
	if err != nil {
		return "", err
	}
	pageURL := page.URL
	if pageURL == "" {
		pageURL = baseURL
	}
	found := FindListingLink(page.Doc, pageURL, indicators)
	f.logger.Debug("listing discovery",
		zap.String("base_url", baseURL),
		zap.String("listing_url", found))
	return found, nil
}

// FindListingLink scans anchors in document order and returns the absolute
// http(s) URL of the first one matching an indicator, case-insensitively.
func FindListingLink(doc *goquery.Document, pageURL string, indicators []string) string {
	if doc == nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	lowered := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		if ind = strings.ToLower(strings.TrimSpace(ind)); ind != "" {
			lowered = append(lowered, ind)
		}
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		text := strings.ToLower(s.Text())
		target := strings.ToLower(href)
		for _, ind := range lowered {
			if !strings.Contains(text, ind) && !strings.Contains(target, ind) {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				return true
			}
			abs := base.ResolveReference(ref)
			if abs.Scheme != "http" && abs.Scheme != "https" {
				return true
			}
			found = abs.String()
			return false
		}
		return true
	})
	return found
}

// Package changedetect computes content fingerprints of listing pages so the
// orchestrator can skip extraction when nothing material changed.
package changedetect

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelector lists elements whose content never contributes to a fingerprint.
const noiseSelector = "script, style, noscript, iframe, nav, header, footer"

var (
	mainContentSelectors = []string{"#main", "#content", "[role=main]", "main"}
	mainContentClass     = regexp.MustCompile(`(?i)(main|content)`)
	whitespace           = regexp.MustCompile(`\s+`)

	// Applied in order to lower-cased, whitespace-collapsed text.
	volatilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}:\d{2}:\d{2}`),
		regexp.MustCompile(`(zuletzt aktualisiert|aktualisiert|stand|last updated|updated)( am| on)?:?\s*\d{1,2}\.\d{1,2}\.\d{2,4}`),
		regexp.MustCompile(`vor \d+ (tagen|tag|stunden|stunde|minuten|minute)`),
		regexp.MustCompile(`\d+ (days?|hours?|minutes?) ago`),
		regexp.MustCompile(`\b(heute|gestern|today|yesterday)\b`),
		regexp.MustCompile(`last updated`),
	}
)

// MainContent returns the region most likely to hold the page's primary
// content, falling back to the whole document.
func MainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	found := doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return mainContentClass.MatchString(class)
	}).First()
	if found.Length() > 0 {
		return found
	}
	return doc.Selection
}

// Fingerprint returns the SHA-256 hex digest of the normalized main content.
// The document is not modified. A nil document yields "".
func Fingerprint(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	region := MainContent(goquery.CloneDocument(doc))
	region.Find(noiseSelector).Remove()
	sum := sha256.Sum256([]byte(Normalize(VisibleText(region))))
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases text, collapses whitespace, and strips volatile
// date and time fragments.
func Normalize(text string) string {
	out := whitespace.ReplaceAllString(strings.ToLower(text), " ")
	for _, re := range volatilePatterns {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
}

// HasChanged reports whether two fingerprints differ. An empty fingerprint on
// either side always counts as a change.
func HasChanged(previous, current string) bool {
	return previous == "" || current == "" || previous != current
}

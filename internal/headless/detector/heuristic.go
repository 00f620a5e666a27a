// Package detector decides when a plain HTTP response should be re-rendered
// in the headless browser.
package detector

import (
	"bytes"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	defaultThreshold     = 2048
	scriptDensityPercent = 25
)

// Heuristic promotes pages that look like client-rendered shells.
type Heuristic struct {
	// BodyLengthThreshold is the size below which a script-heavy body is
	// treated as a shell.
	BodyLengthThreshold int
	markers             [][]byte
}

var defaultMarkers = []string{
	"__next",
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"ng-app",
	"enable javascript",
	"javascript aktivieren",
}

// NewHeuristic creates a detector. Extra markers are matched
// case-insensitively in addition to the built-in single-page-app markers.
func NewHeuristic(threshold int, extraMarkers ...string) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	h := &Heuristic{BodyLengthThreshold: threshold}
	for _, m := range append(append([]string(nil), defaultMarkers...), extraMarkers...) {
		if m == "" {
			continue
		}
		h.markers = append(h.markers, bytes.ToLower([]byte(m)))
	}
	return h
}

// ShouldPromote implements scraper.HeadlessDetector. Only successful
// responses are considered; failures take the error path instead.
func (h *Heuristic) ShouldPromote(resp scraper.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	if len(lower) < h.BodyLengthThreshold && scriptPercent(lower) >= scriptDensityPercent {
		return true
	}
	for _, marker := range h.markers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptPercent returns how much of the lower-cased body sits inside script
// elements. An unterminated script runs to the end of the body.
func scriptPercent(lower []byte) int {
	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
		covered  int
		rest     = lower
	)
	for {
		start := bytes.Index(rest, openTag)
		if start < 0 {
			break
		}
		end := bytes.Index(rest[start:], closeTag)
		if end < 0 {
			covered += len(rest) - start
			break
		}
		end += start + len(closeTag)
		covered += end - start
		rest = rest[end:]
	}
	return covered * 100 / len(lower)
}

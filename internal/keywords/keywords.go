// Package keywords holds the per-locale term lists used to find listing pages,
// qualify candidate postings, classify them, and reject non-posting content.
package keywords

import (
	"strings"

	"github.com/JakeFAU/listingwatch/internal/changedetect"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

// Locale bundles the terms for one language.
type Locale struct {
	Code       string   `mapstructure:"code" json:"code"`
	StopWords  []string `mapstructure:"stop_words" json:"stop_words"`
	Indicators []string `mapstructure:"indicators" json:"indicators"`
	Research   []string `mapstructure:"research" json:"research"`
	Artistic   []string `mapstructure:"artistic" json:"artistic"`
}

// Set is the full keyword configuration. Locale order matters: it breaks ties
// in locale detection.
type Set struct {
	Locales    []Locale `mapstructure:"locales" json:"locales"`
	JobTerms   []string `mapstructure:"job_terms" json:"job_terms"`
	Exclusions []string `mapstructure:"exclusions" json:"exclusions"`
}

// Default returns the built-in German and English term lists.
func Default() Set {
	return Set{
		Locales: []Locale{
			{
				Code:      "de",
				StopWords: []string{"und", "der", "die", "das", "für", "mit", "stellenausschreibung"},
				Indicators: []string{
					"stellenangebote", "stellenausschreibung", "stellenausschreibungen",
					"offene stellen", "karriere", "jobs", "stellenanzeigen", "ausschreibungen",
				},
				Research: []string{
					"wissenschaftliche", "wissenschaftlicher", "wiss.", "forschung",
					"wissenschaftliche hilfskraft", "forschungsmitarbeiter",
				},
				Artistic: []string{
					"künstlerische", "künstlerischer", "künst.", "kunst",
					"künstlerische hilfskraft",
				},
			},
			{
				Code:      "en",
				StopWords: []string{"and", "the", "for", "with", "job", "position"},
				Indicators: []string{
					"job openings", "job opportunities", "careers", "vacancies",
					"open positions", "employment", "jobs",
				},
				Research: []string{
					"research", "scientific staff", "academic staff", "research fellow",
				},
				Artistic: []string{
					"artistic", "creative assistant",
				},
			},
		},
		JobTerms: []string{
			"mitarbeiter", "wissenschaftliche", "künstlerische", "stelle", "ausschreibung",
			"position", "besetzung", "teilzeit", "vollzeit", "befristet", "entgeltgruppe",
			"tv-l", "wiss.", "künst.", "lehrkraft", "dozent", "professor", "assistent",
			"staff", "assistant", "associate", "researcher", "lecturer", "employment", "vacancy",
		},
		Exclusions: []string{
			"exhibition", "ausstellung", "veranstaltung", "event", "katalog", "catalogue",
			"publikation", "publication", "workshop", "seminar", "studiengang",
			"degree program", "bachelor", "master",
		},
	}
}

// Merge fills every empty field of s from def.
func (s Set) Merge(def Set) Set {
	if len(s.Locales) == 0 {
		s.Locales = def.Locales
	}
	if len(s.JobTerms) == 0 {
		s.JobTerms = def.JobTerms
	}
	if len(s.Exclusions) == 0 {
		s.Exclusions = def.Exclusions
	}
	return s
}

// Indicators returns the listing-page indicators of every locale, lower-cased
// and deduplicated, in locale order.
func (s Set) Indicators() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, loc := range s.Locales {
		for _, term := range loc.Indicators {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" {
				continue
			}
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}

// IsExcluded reports whether text contains any exclusion term.
func (s Set) IsExcluded(text string) bool {
	return containsAny(strings.ToLower(text), s.Exclusions)
}

// HasJobTerm reports whether text looks like a posting.
func (s Set) HasJobTerm(text string) bool {
	return containsAny(strings.ToLower(text), s.JobTerms)
}

// Classify maps text to a category using the lists of locale first and the
// lists of every locale when those do not match. Research terms are checked
// before artistic terms; callers must check IsExcluded first.
func (s Set) Classify(text, locale string) scraper.Category {
	lower := strings.ToLower(text)
	for _, loc := range s.Locales {
		if loc.Code != locale {
			continue
		}
		if containsAny(lower, loc.Research) {
			return scraper.CategoryResearch
		}
		if containsAny(lower, loc.Artistic) {
			return scraper.CategoryArtistic
		}
	}
	for _, loc := range s.Locales {
		if containsAny(lower, loc.Research) {
			return scraper.CategoryResearch
		}
	}
	for _, loc := range s.Locales {
		if containsAny(lower, loc.Artistic) {
			return scraper.CategoryArtistic
		}
	}
	return scraper.CategoryOther
}

// LocaleWords adapts the set for changedetect.DetectLocale.
func (s Set) LocaleWords() []changedetect.LocaleWords {
	out := make([]changedetect.LocaleWords, 0, len(s.Locales))
	for _, loc := range s.Locales {
		out = append(out, changedetect.LocaleWords{Locale: loc.Code, Words: loc.StopWords})
	}
	return out
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

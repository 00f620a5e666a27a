package changedetect

import (
	"strings"
	"unicode"
)

// LocaleWords pairs a locale code with the common words that identify it.
type LocaleWords struct {
	Locale string
	Words  []string
}

// DetectLocale scores text against each word list and returns the locale
// with the most whole-word hits. Ties, including no hits at all, go to the
// earliest locale. An empty list yields "".
func DetectLocale(text string, locales []LocaleWords) string {
	if len(locales) == 0 {
		return ""
	}
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		counts[tok]++
	}
	best, bestScore := locales[0].Locale, -1
	for _, lw := range locales {
		score := 0
		for _, w := range lw.Words {
			score += counts[strings.ToLower(w)]
		}
		if score > bestScore {
			best, bestScore = lw.Locale, score
		}
	}
	return best
}

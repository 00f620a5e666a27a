package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/listingwatch/internal/changedetect"
)

// candidate is an element a strategy believes may be a posting. matchText is
// what keyword qualification, exclusion, and classification run against;
// fullText feeds description, deadline, and group extraction.
type candidate struct {
	sel       *goquery.Selection
	title     string
	href      string
	matchText string
	fullText  string
}

type strategy struct {
	name string
	find func(region *goquery.Selection) []candidate
}

type containerPattern struct {
	tag   string
	class *regexp.Regexp
}

var containerPatterns = []containerPattern{
	{tag: "div", class: regexp.MustCompile(`(?i)(job|stelle|position|vacanc).*list.*row`)},
	{tag: "div", class: regexp.MustCompile(`(?i)(job|vacanc|stelle|position|career|opening)[-_]?(item|entry|card|teaser)`)},
	{tag: "article", class: regexp.MustCompile(`(?i)job|position|stelle|vacanc|career`)},
	{tag: "li", class: regexp.MustCompile(`(?i)job|position|stelle|vacanc|career`)},
}

var documentExtensions = map[string]struct{}{".pdf": {}, ".doc": {}, ".docx": {}}

// containerCandidates finds elements whose class names mark them as listing
// entries.
func (e *Extractor) containerCandidates(region *goquery.Selection) []candidate {
	var out []candidate
	for _, p := range containerPatterns {
		matched := 0
		region.Find(p.tag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			if !p.class.MatchString(class) {
				return true
			}
			text := changedetect.VisibleText(s)
			out = append(out, candidate{sel: s, matchText: strings.ToLower(text), fullText: text})
			matched++
			return matched < e.cfg.ContainerLimit
		})
	}
	return out
}

// anchorCandidates treats every sufficiently descriptive link as a posting.
func (e *Extractor) anchorCandidates(region *goquery.Selection) []candidate {
	var out []candidate
	region.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !webLink(href) {
			return
		}
		text := collapse(changedetect.VisibleText(s))
		if utf8.RuneCountInString(text) < e.cfg.MinTitleLen {
			return
		}
		out = append(out, candidate{
			sel:       s,
			title:     text,
			href:      href,
			matchText: strings.ToLower(text + " " + href),
			fullText:  text,
		})
	})
	return out
}

// documentCandidates accepts links to document files even when their text is
// too short, titling them after the file name.
func (e *Extractor) documentCandidates(region *goquery.Selection) []candidate {
	var out []candidate
	region.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !webLink(href) || !isDocument(href) {
			return
		}
		text := collapse(changedetect.VisibleText(s))
		title := text
		if utf8.RuneCountInString(title) < e.cfg.MinTitleLen {
			title = documentTitle(href)
		}
		if utf8.RuneCountInString(title) < e.cfg.MinTitleLen {
			title = "Document posting (" + strings.ToUpper(strings.TrimPrefix(docExt(href), ".")) + ")"
		}
		out = append(out, candidate{
			sel:       s,
			title:     title,
			href:      href,
			matchText: strings.ToLower(text + " " + href),
			fullText:  text,
		})
	})
	return out
}

// tableCandidates reads postings out of table rows in tables that mention
// postings at all.
func (e *Extractor) tableCandidates(region *goquery.Selection) []candidate {
	var out []candidate
	region.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !e.kw.HasJobTerm(changedetect.VisibleText(table)) {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			text := collapse(changedetect.VisibleText(row))
			if utf8.RuneCountInString(text) < e.cfg.MinRowTextLen {
				return
			}
			c := candidate{sel: row, matchText: strings.ToLower(text), fullText: text}
			if link := row.Find("a[href]").First(); link.Length() > 0 {
				c.href, _ = link.Attr("href")
				c.title = collapse(changedetect.VisibleText(link))
			}
			if utf8.RuneCountInString(c.title) < e.cfg.MinTitleLen {
				c.title = collapse(changedetect.VisibleText(row.Find("td, th").First()))
			}
			out = append(out, c)
		})
	})
	return out
}

func webLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	switch {
	case href == "", strings.HasPrefix(href, "#"):
		return false
	case strings.HasPrefix(href, "mailto:"), strings.HasPrefix(href, "javascript:"), strings.HasPrefix(href, "tel:"):
		return false
	}
	return true
}

func docExt(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

func isDocument(href string) bool {
	_, ok := documentExtensions[docExt(href)]
	return ok
}

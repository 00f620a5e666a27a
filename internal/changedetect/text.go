package changedetect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// VisibleText joins every text node under sel with single spaces, so adjacent
// block elements do not run together the way Selection.Text does.
func VisibleText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

// TextLines returns the trimmed, non-empty lines of every text node under sel
// in document order.
func TextLines(sel *goquery.Selection) []string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	var lines []string
	for _, part := range parts {
		for _, line := range strings.Split(part, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if strings.TrimSpace(n.Data) != "" {
			*parts = append(*parts, n.Data)
		}
		return
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup returns the visible text of an HTML fragment, one space between
// text nodes. Plain text passes through with whitespace collapsed.
func StripMarkup(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CleanText(fragment)
	}

	var parts []string
	collectText(doc.Selection, &parts)
	return CleanText(strings.Join(parts, " "))
}

func collectText(sel *goquery.Selection, parts *[]string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "#text":
			if t := strings.TrimSpace(s.Text()); t != "" {
				*parts = append(*parts, t)
			}
		case "script", "style", "#comment":
		default:
			collectText(s, parts)
		}
	})
}

// CleanText collapses whitespace runs, including non-breaking spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

package feed

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/paperdigest/internal/config"
)

// selectorFor turns an extractor into a CSS selector. Class and id
// extractors may be written with or without the "div." / "div#" prefix.
func selectorFor(e config.Extractor) string {
	switch e.Type {
	case "", "class":
		return "div." + strings.TrimPrefix(e.Selector, "div.")
	case "id":
		return "div#" + strings.TrimPrefix(e.Selector, "div#")
	default:
		return e.Selector
	}
}

func extractWithSelector(page []byte, e config.Extractor) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	sel := doc.Find(selectorFor(e)).First()
	if sel.Length() == 0 {
		return "", nil
	}
	return strings.TrimSpace(sel.Text()), nil
}

// StripHTML removes tags, decodes entities and collapses whitespace.
func StripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package markdown renders model-written summaries, which are usually
// markdown, for the HTML report and for plain-text previews.
package markdown

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ToHTML renders md to an HTML fragment. Raw HTML in the input is dropped
// and links with unsafe schemes are not rendered as links.
func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank | html.SkipHTML | html.Safelink,
	}
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.HardLineBreak
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(normalizeNewlines(md))
	return string(markdown.Render(doc, renderer))
}

// ToPlainText renders md and returns its text content with whitespace
// collapsed.
func ToPlainText(md []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ToHTML(md)))
	if err != nil {
		return strings.TrimSpace(string(md))
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Preview returns at most n runes of the plain text of md.
func Preview(md string, n int) string {
	text := []rune(ToPlainText([]byte(md)))
	if len(text) <= n {
		return string(text)
	}
	return string(text[:n]) + "..."
}

func normalizeNewlines(b []byte) []byte {
	return []byte(strings.ReplaceAll(string(b), "\r\n", "\n"))
}

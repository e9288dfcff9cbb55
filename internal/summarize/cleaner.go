package summarize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	linkExpr  = regexp.MustCompile(`https?://\S+`)
	imageExpr = regexp.MustCompile(`(?i)\[image:[^\]]*\]`)
	cidExpr   = regexp.MustCompile(`(?i)\[cid:[^\]]*\]`)
	tagExpr   = regexp.MustCompile(`<[^>]+>`)
	spaceExpr = regexp.MustCompile(`\s+`)
)

// Clean strips links, inline image/file references, and leftover markup,
// then collapses whitespace.
func Clean(text string) string {
	text = linkExpr.ReplaceAllString(text, "")
	text = imageExpr.ReplaceAllString(text, "")
	text = cidExpr.ReplaceAllString(text, "")
	text = tagExpr.ReplaceAllString(text, " ")
	text = spaceExpr.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// HTMLToText extracts readable text from an HTML mail body, dropping
// scripts, styles, and markup.
func HTMLToText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Clean(markup)
	}
	doc.Find("script, style, head").Remove()
	return Clean(doc.Text())
}

// Truncate cuts text to max characters, appending an ellipsis marker when
// a cut happened. The returned text never exceeds max characters.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	if max <= 3 {
		return string(runes[:max]), true
	}
	return strings.TrimSpace(string(runes[:max-3])) + "...", true
}

// BodyText picks the best readable text for a message: the plain-text body
// when present, otherwise the HTML body stripped to text.
func BodyText(plain, html string) string {
	if strings.TrimSpace(plain) != "" {
		return plain
	}
	if strings.TrimSpace(html) != "" {
		return HTMLToText(html)
	}
	return ""
}

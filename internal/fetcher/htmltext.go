package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText converts an HTML fragment to normalized plain text: tags
// stripped, whitespace collapsed. Input that fails to parse is returned
// whitespace-collapsed as-is.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseWhitespace(html)
	}
	doc.Find("script, style").Remove()
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

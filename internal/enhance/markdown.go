package enhance

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// htmlToMarkdown strips non-content elements from an HTML body and converts
// what remains to Markdown, falling back to collapsed plain text.
func htmlToMarkdown(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed, svg, canvas, form, input, button, select, textarea").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	plain := strings.Join(strings.Fields(root.Text()), " ")

	htmlStr, err := root.Html()
	if err != nil {
		return plain, nil
	}
	md, err := htmltomarkdown.ConvertString(htmlStr)
	if err != nil {
		return plain, nil
	}
	return md, nil
}

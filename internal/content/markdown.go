// Package content renders comment bodies for display. Comments are written
// in Markdown; the rendered HTML is sanitized before it leaves the server.
package content

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithXHTML(),
		),
	)
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// Render converts Markdown to sanitized HTML. Raw HTML in the source is
// dropped by the Markdown renderer and anything left that the policy does
// not allow is stripped. On a conversion error the escaped source is returned.
func Render(src string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return html.EscapeString(src)
	}
	return string(policy.SanitizeBytes(buf.Bytes()))
}

// Links returns the href of every anchor in rendered HTML, in document order.
func Links(rendered string) []string {
	if rendered == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			out = append(out, href)
		}
	})
	return out
}

// Plain returns the visible text of rendered HTML.
func Plain(rendered string) string {
	if rendered == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return rendered
	}
	return strings.TrimSpace(doc.Text())
}

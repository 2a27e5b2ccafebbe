package content

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// titleExprs locate the chapter title in markup, in priority order: the first
// h1, then the first h2, then the document title element.
var titleExprs = []*xpath.Expr{
	xpath.MustCompile("//h1"),
	xpath.MustCompile("//h2"),
	xpath.MustCompile("//title"),
}

// skipElements are markup elements whose text is not reader-visible content.
// Search and addressing must never see their text.
var skipElements = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
}

// FlattenMarkup parses chapter markup (XHTML or any well-formed XML) and
// returns the chapter title and its flattened visible text. Whitespace runs
// are collapsed to single spaces so the token stream is stable regardless of
// source formatting.
func FlattenMarkup(r io.Reader) (title, text string, err error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parsing chapter markup: %w", err)
	}

	for _, expr := range titleExprs {
		if heading := xmlquery.QuerySelector(root, expr); heading != nil {
			title = collapseWhitespace(heading.InnerText())
			break
		}
	}

	var b strings.Builder
	collectText(root, &b)
	return title, collapseWhitespace(b.String()), nil
}

// FlattenPlainText normalizes plain-text chapter content the same way markup
// content is normalized.
func FlattenPlainText(raw string) string {
	return collapseWhitespace(raw)
}

// collectText appends the visible text under n, skipping non-content
// elements.
func collectText(n *xmlquery.Node, b *strings.Builder) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		b.WriteString(n.Data)
		return
	case xmlquery.ElementNode:
		if skipElements[strings.ToLower(n.Data)] {
			return
		}
		// Block-ish elements separate words even without whitespace between
		// their text nodes.
		b.WriteString(" ")
	case xmlquery.CommentNode, xmlquery.DeclarationNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// collapseWhitespace reduces every whitespace run to a single space and trims
// the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

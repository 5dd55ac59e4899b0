package extract

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// StripMarkup removes HTML/JATS tags that literature APIs leave inside abstracts
// and collapses whitespace. Plain text passes through with only whitespace normalised.
func StripMarkup(text string) string {
	if !strings.Contains(text, "<") {
		return collapse(html.UnescapeString(text))
	}

	doc, err := xhtml.Parse(strings.NewReader(text))
	if err != nil {
		return collapse(text)
	}

	return collapse(visibleText(doc))
}

// visibleText extracts text nodes, skipping scripts and styles
func visibleText(n *xhtml.Node) string {
	var buf strings.Builder

	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}

		if n.Type == xhtml.TextNode {
			buf.WriteString(n.Data)
			buf.WriteString(" ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

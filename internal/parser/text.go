package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var removeTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"header": true, "footer": true, "nav": true, "aside": true,
}

var nonNarrativeTags = map[string]bool{
	"table": true, "thead": true, "tbody": true, "tfoot": true,
	"tr": true, "td": true, "th": true,
	"img": true, "figure": true, "figcaption": true,
	"video": true, "audio": true, "iframe": true, "canvas": true, "svg": true,
}

var inlineTags = map[string]bool{
	"span": true, "a": true, "strong": true, "em": true,
	"b": true, "i": true, "u": true, "sup": true, "sub": true,
	"small": true, "font": true, "mark": true, "abbr": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true,
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	extraNewlines   = regexp.MustCompile(`\n{3,}`)
)

// ExtractText strips what is left of the non-narrative markup and rebuilds
// paragraph text, breaking at block-level tags.
func ExtractText(t *ImagesDone) string {
	root := t.take()
	prune(root)

	start := findBody(root)
	if start == nil {
		start = root
	}

	var (
		paragraphs []string
		buf        []string
	)
	flush := func() {
		if len(buf) > 0 {
			paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(buf, " ")))
			buf = buf[:0]
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if s := strings.TrimSpace(c.Data); s != "" {
					buf = append(buf, s)
				}
			case html.ElementNode:
				if blockTags[c.Data] {
					flush()
				}
				walk(c)
			}
		}
	}
	walk(start)
	flush()

	return NormalizeText(strings.Join(paragraphs, "\n\n"))
}

// NormalizeText decodes entities, turns non-breaking spaces into spaces,
// collapses horizontal whitespace and limits blank lines to one.
func NormalizeText(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = extraNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// prune removes non-narrative subtrees, then unwraps inline formatting.
func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && (removeTags[c.Data] || nonNarrativeTags[c.Data]) {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && inlineTags[c.Data] {
			// Children were pruned above; splice them into n.
			first := c.FirstChild
			unwrap(c)
			if first != nil {
				next = first
			}
		}
		c = next
	}
}

// unwrap replaces n with its children.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

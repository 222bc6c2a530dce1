package parser

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// The document passes through three phases in a fixed order. Each phase
// consumes the previous stage's handle and returns the next one, so skipping
// or reordering a phase does not type-check. A consumed handle panics on reuse.

// Tree is a freshly parsed filing, ready for the table phase.
type Tree struct {
	root *html.Node
	base *url.URL
}

// TablesDone is a tree whose data tables have been removed or flattened.
type TablesDone struct {
	root *html.Node
	base *url.URL
}

// ImagesDone is a tree with every img node removed.
type ImagesDone struct {
	root *html.Node
}

// NewTree parses raw HTML. baseURL resolves relative image sources and may
// be empty.
func NewTree(r io.Reader, baseURL string) (*Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Tree{root: doc, base: base}, nil
}

// Title returns the document's <title> text.
func (t *Tree) Title() string {
	if t == nil || t.root == nil {
		return ""
	}
	return findTitle(t.root)
}

func (t *Tree) take() (*html.Node, *url.URL) {
	if t == nil || t.root == nil {
		panic("parser: tree already consumed")
	}
	root := t.root
	t.root = nil
	return root, t.base
}

func (t *TablesDone) take() (*html.Node, *url.URL) {
	if t == nil || t.root == nil {
		panic("parser: tree already consumed")
	}
	root := t.root
	t.root = nil
	return root, t.base
}

func (t *ImagesDone) take() *html.Node {
	if t == nil || t.root == nil {
		panic("parser: tree already consumed")
	}
	root := t.root
	t.root = nil
	return root
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func removeNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return strings.TrimSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf []byte
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf = append(buf, n.Data...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return string(buf)
}

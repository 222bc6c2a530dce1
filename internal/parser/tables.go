package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/filingrag/internal/doctree"
	"github.com/dgallion1/filingrag/internal/items"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MinTableText is the flattened length below which a table is treated as
// narrative rather than data.
const MinTableText = 50

var (
	yearPattern   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	numberPattern = regexp.MustCompile(`\d{2,}`)
)

var financialKeywords = []string{
	"revenue", "net sales", "income", "profit", "loss",
	"assets", "liabilities", "equity", "cash flow",
	"operating", "gross margin", "cost of sales",
	"usd", "dollars", "millions",
}

var compensationKeywords = []string{"salary", "bonus", "stock", "option"}

// ExtractTables visits every table in document order. Data tables are
// removed and returned as records; everything else is replaced in place by
// its flattened text. Tables that contain another table are skipped; once the
// leaf tables are done, those layout wrappers are unwrapped so their cell
// content stays in the tree for the image and text phases.
func ExtractTables(t *Tree) (*TablesDone, []doctree.Table) {
	root, base := t.take()
	doc := goquery.NewDocumentFromNode(root)

	var tables []doctree.Table
	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		if s.Find("table").Length() > 0 {
			return
		}

		flat := tableText(s)
		if items.Contains(flat) || utf8.RuneCountInString(flat) < MinTableText {
			s.ReplaceWithNodes(textNode(flat))
			return
		}

		rec := tableRecord(s)
		rec.Type = ClassifyTable(rec.Headers, rec.Rows)
		if !rec.Type.Structured() {
			s.ReplaceWithNodes(textNode(flat))
			return
		}
		tables = append(tables, rec)
		s.Remove()
	})

	for _, n := range doc.Find("table").Nodes {
		unwrapLayout(n)
	}

	return &TablesDone{root: root, base: base}, tables
}

// ClassifyTable assigns a category from the table content. The checks run
// in priority order: financial, compensation, entity, then policy.
func ClassifyTable(headers []string, rows []doctree.Row) doctree.TableType {
	text := classificationText(headers, rows)
	lower := strings.ToLower(text)

	hasYears := yearPattern.MatchString(text)
	hasNumbers := numberPattern.MatchString(text)

	switch {
	case hasNumbers && hasYears && containsAny(lower, financialKeywords):
		return doctree.TableFinancial
	case hasNumbers && containsAny(lower, compensationKeywords):
		return doctree.TableCompensation
	case hasNumbers:
		return doctree.TableEntity
	default:
		return doctree.TablePolicy
	}
}

func classificationText(headers []string, rows []doctree.Row) string {
	parts := append([]string(nil), headers...)
	for _, r := range rows {
		if r.Cells == nil {
			parts = append(parts, r.Raw...)
			continue
		}
		for _, h := range headers {
			parts = append(parts, h, r.Cells[h])
		}
	}
	return strings.Join(parts, " ")
}

// tableText joins every non-blank text fragment with a single space.
func tableText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, func(t string) {
			if t = strings.TrimSpace(strings.ReplaceAll(t, "\u00a0", " ")); t != "" {
				parts = append(parts, t)
			}
		})
	}
	return strings.Join(parts, " ")
}

// cellText joins the stripped fragments of one cell with no separator.
func cellText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		collectText(n, func(t string) {
			b.WriteString(strings.TrimSpace(strings.ReplaceAll(t, "\u00a0", " ")))
		})
	}
	return b.String()
}

func tableRecord(s *goquery.Selection) doctree.Table {
	rec := doctree.Table{Headers: []string{}, Rows: []doctree.Row{}}
	haveHeaders := false

	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			cells = append(cells, cellText(c))
		})
		if len(cells) == 0 {
			return
		}
		if !haveHeaders {
			rec.Headers = cells
			haveHeaders = true
			return
		}
		if len(cells) == len(rec.Headers) {
			rec.Rows = append(rec.Rows, doctree.NewRow(rec.Headers, cells))
			return
		}
		rec.Rows = append(rec.Rows, doctree.Row{Raw: cells})
	})
	return rec
}

func collectText(n *html.Node, fn func(string)) {
	if n.Type == html.TextNode {
		fn(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, fn)
	}
}

// unwrapLayout replaces a layout table with one div per cell, keeping the
// cell children in document order.
func unwrapLayout(table *html.Node) {
	parent := table.Parent
	if parent == nil {
		return
	}
	var cells func(*html.Node)
	cells = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode {
				switch c.Data {
				case "td", "th", "caption":
					div := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
					for cc := c.FirstChild; cc != nil; {
						nn := cc.NextSibling
						c.RemoveChild(cc)
						div.AppendChild(cc)
						cc = nn
					}
					parent.InsertBefore(div, table)
				case "thead", "tbody", "tfoot", "tr":
					cells(c)
				}
			}
			c = next
		}
	}
	cells(table)
	parent.RemoveChild(table)
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

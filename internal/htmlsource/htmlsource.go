// Package htmlsource exposes a parsed HTML page through the extract.Document tree.
package htmlsource

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"

	"gradewatch/internal/extract"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document implements extract.Document over a goquery document.
type Document struct {
	doc *goquery.Document
}

func Parse(r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Document{}, err
	}
	return Document{doc: doc}, nil
}

func ParseBytes(body []byte) (Document, error) {
	return Parse(bytes.NewReader(body))
}

func FromGoquery(doc *goquery.Document) Document {
	return Document{doc: doc}
}

// Selection returns the underlying goquery document.
func (d Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

func (d Document) Tables() []extract.Table {
	var out []extract.Table
	d.doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("table").Length() > 0 {
			return
		}
		out = append(out, table{sel: s})
	})
	return out
}

func (d Document) Text() string {
	body := d.doc.Find("body")
	if body.Length() == 0 {
		body = d.doc.Selection
	}

	var buffer strings.Builder
	for _, n := range body.Nodes {
		writeText(n, &buffer)
	}

	lines := strings.Split(buffer.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = collapseWhitespace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "form": true, "ul": true, "ol": true,
}

func writeText(node *html.Node, buffer *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		if node.Data == "script" || node.Data == "style" {
			return
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeText(child, buffer)
	}
	if node.Type != html.ElementNode {
		return
	}
	switch {
	case blockElements[node.Data]:
		buffer.WriteByte('\n')
	case node.Data == "td" || node.Data == "th":
		buffer.WriteByte(' ')
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
}

func collapseWhitespace(s string) string {
	s = removeNonPrintable(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

type table struct {
	sel *goquery.Selection
}

func (t table) Rows() []extract.Row {
	var out []extract.Row
	t.sel.Find("tr").Each(func(_ int, s *goquery.Selection) {
		// rows of nested tables belong to those tables
		if !s.Closest("table").IsSelection(t.sel) {
			return
		}
		out = append(out, row{cells: s.ChildrenFiltered("td, th")})
	})
	return out
}

type row struct {
	cells *goquery.Selection
}

func (r row) CellCount() int {
	return r.cells.Length()
}

func (r row) cell(i int) *goquery.Selection {
	if i < 0 || i >= r.cells.Length() {
		return nil
	}
	return r.cells.Eq(i)
}

// CellText excludes the text of tables nested in the cell, those are reached
// through NestedTables.
func (r row) CellText(i int) string {
	c := r.cell(i)
	if c == nil {
		return ""
	}
	if c.Find("table").Length() == 0 {
		return collapseWhitespace(c.Text())
	}
	own := c.Clone()
	own.Find("table").Remove()
	return collapseWhitespace(own.Text())
}

func (r row) NestedTables(i int) []extract.Table {
	c := r.cell(i)
	if c == nil {
		return nil
	}
	var out []extract.Table
	c.Find("table").Each(func(_ int, s *goquery.Selection) {
		// only the closest tables, deeper ones are reached through them
		if s.ParentsUntilSelection(c).Filter("table").Length() > 0 {
			return
		}
		out = append(out, table{sel: s})
	})
	return out
}

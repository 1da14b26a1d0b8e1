package extract

// Document is the rendered grades page as seen by the extractor. It depends only
// on this tree, never on how the page was fetched.
type Document interface {
	// Tables returns the tables which are not nested inside another table.
	Tables() []Table
	// Text returns the visible text of the page, one line per block element.
	Text() string
}

type Table interface {
	Rows() []Row
}

type Row interface {
	CellCount() int
	// CellText returns the whitespace-collapsed text of cell i, "" when out of range.
	CellText(i int) string
	// NestedTables returns the tables directly nested in cell i.
	NestedTables(i int) []Table
}

// walkRows calls fn on every row of the document, depth first, nested tables included.
func walkRows(doc Document, fn func(Row)) {
	for _, t := range doc.Tables() {
		walkTable(t, fn)
	}
}

func walkTable(t Table, fn func(Row)) {
	for _, row := range t.Rows() {
		fn(row)
		for i := 0; i < row.CellCount(); i++ {
			for _, nested := range row.NestedTables(i) {
				walkTable(nested, fn)
			}
		}
	}
}

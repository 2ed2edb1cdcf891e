package render

import "math"

// Geometry describes the label sheet in millimetres.
type Geometry struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	Columns    int
	RowHeight  float64
}

// A4 returns an A4 portrait sheet with the given grid.
func A4(columns int, rowHeight, margin float64) Geometry {
	return Geometry{PageWidth: 210, PageHeight: 297, Margin: margin, Columns: columns, RowHeight: rowHeight}
}

// ColumnWidth is the printable width split evenly across columns.
func (g Geometry) ColumnWidth() float64 {
	return (g.PageWidth - 2*g.Margin) / float64(g.Columns)
}

// RowsPerPage is how many whole rows fit the printable height, at least one.
func (g Geometry) RowsPerPage() int {
	rows := int(math.Floor((g.PageHeight - 2*g.Margin) / g.RowHeight))
	if rows < 1 {
		return 1
	}
	return rows
}

// Cell is the placement of one label. Page is zero-based.
type Cell struct {
	Page   int
	X, Y   float64
	Width  float64
	Height float64
}

// ComputeLayout places n labels row by row. A row that would overflow the
// printable height starts a new page. The result depends only on n and g.
func ComputeLayout(n int, g Geometry) []Cell {
	if n <= 0 || g.Columns <= 0 || g.RowHeight <= 0 {
		return nil
	}

	colW := g.ColumnWidth()
	perPage := g.RowsPerPage() * g.Columns
	cells := make([]Cell, n)
	for i := range cells {
		onPage := i % perPage
		row, col := onPage/g.Columns, onPage%g.Columns
		cells[i] = Cell{
			Page:   i / perPage,
			X:      g.Margin + float64(col)*colW,
			Y:      g.Margin + float64(row)*g.RowHeight,
			Width:  colW,
			Height: g.RowHeight,
		}
	}
	return cells
}

// PageCount is the number of pages ComputeLayout spreads n labels over.
func PageCount(n int, g Geometry) int {
	if n <= 0 {
		return 0
	}
	perPage := g.RowsPerPage() * g.Columns
	return (n + perPage - 1) / perPage
}

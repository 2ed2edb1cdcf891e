package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLayout_Grid(t *testing.T) {
	g := A4(3, 38, 10)
	cells := ComputeLayout(4, g)
	require.Len(t, cells, 4)

	assert.InDelta(t, 63.333, g.ColumnWidth(), 0.001)
	assert.Equal(t, Cell{Page: 0, X: 10, Y: 10, Width: g.ColumnWidth(), Height: 38}, cells[0])
	assert.InDelta(t, 10+2*g.ColumnWidth(), cells[2].X, 1e-9)
	assert.Equal(t, 0, cells[2].Page)
	// Fourth label wraps to the second row.
	assert.Equal(t, 10.0, cells[3].X)
	assert.Equal(t, 48.0, cells[3].Y)
}

func TestComputeLayout_Paginates(t *testing.T) {
	g := A4(3, 38, 10)
	// (297-20)/38 = 7 rows, 21 labels per page.
	require.Equal(t, 7, g.RowsPerPage())

	cells := ComputeLayout(22, g)
	assert.Equal(t, 0, cells[20].Page)
	assert.Equal(t, 1, cells[21].Page)
	assert.Equal(t, 10.0, cells[21].Y)
	assert.Equal(t, 2, PageCount(22, g))
	assert.Equal(t, 5, PageCount(100, g))
}

func TestComputeLayout_Deterministic(t *testing.T) {
	g := A4(4, 30, 8)
	assert.Equal(t, ComputeLayout(57, g), ComputeLayout(57, g))
}

func TestComputeLayout_Degenerate(t *testing.T) {
	assert.Nil(t, ComputeLayout(0, A4(3, 38, 10)))
	assert.Nil(t, ComputeLayout(5, A4(0, 38, 10)))

	// A row taller than the page still gets one row per page.
	g := A4(1, 400, 10)
	assert.Equal(t, 1, g.RowsPerPage())
	assert.Equal(t, 3, PageCount(3, g))
}

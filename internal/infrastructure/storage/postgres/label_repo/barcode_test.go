package label_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/id"
)

func TestRecentSerialsQuery(t *testing.T) {
	sql, args, err := recentSerialsQuery("BX", 500).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT serial FROM barcodes WHERE serial LIKE $1 AND serial ~ $2 ORDER BY id DESC LIMIT 500", sql)
	assert.Equal(t, []any{"BX%", "^BX[0-9]+$"}, args)
}

func TestDeleteByIDsQuery(t *testing.T) {
	a, b := id.New(), id.New()

	sql, args, err := deleteByIDsQuery([]id.ID{a, b}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM barcodes WHERE id IN ($1,$2)", sql)
	assert.Equal(t, []any{a, b}, args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "BX", escapeLike("BX"))
	assert.Equal(t, `A\_B\%`, escapeLike("A_B%"))
}

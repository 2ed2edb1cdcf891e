package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"backoffice/internal/core/id"
)

type mockTimestamps struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type mockLabel struct {
	ID     id.ID  `db:"id"`
	Serial string `db:"serial"`
	mockTimestamps
	Note string `db:"-"`
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[mockLabel]()

	assert.Equal(t, []string{"id", "serial", "created_at", "updated_at"}, cols)
}

func TestStructToMap_SkipsIgnored(t *testing.T) {
	now := time.Now().UTC()
	l := mockLabel{
		ID:             id.New(),
		Serial:         "BX000001",
		mockTimestamps: mockTimestamps{CreatedAt: now, UpdatedAt: now},
		Note:           "ignored",
	}

	m := StructToMap(&l)

	assert.Equal(t, l.ID, m["id"])
	assert.Equal(t, "BX000001", m["serial"])
	assert.Equal(t, now, m["created_at"])
	assert.NotContains(t, m, "-")
	assert.Len(t, m, 4)
}

func TestRowValues_FollowsColumnOrder(t *testing.T) {
	a := mockLabel{ID: id.New(), Serial: "BX000001"}
	b := mockLabel{ID: id.New(), Serial: "BX000002"}

	rows := RowValues([]mockLabel{a, b}, []string{"serial", "id"})

	assert.Len(t, rows, 2)
	assert.Equal(t, []any{"BX000001", a.ID}, rows[0])
	assert.Equal(t, []any{"BX000002", b.ID}, rows[1])
}

type mockPointerLabel struct {
	Serial string `db:"serial"`
	*mockTimestamps
}

func TestStructToMap_UnexportedEmbeddedPointer(t *testing.T) {
	now := time.Now().UTC()

	m := StructToMap(mockPointerLabel{Serial: "BX000001", mockTimestamps: &mockTimestamps{UpdatedAt: now}})
	assert.Equal(t, now, m["updated_at"])
	assert.Len(t, m, 3)

	// A nil embedded pointer contributes nothing.
	m = StructToMap(mockPointerLabel{Serial: "BX000002"})
	assert.Equal(t, map[string]any{"serial": "BX000002"}, m)
}

func TestRowValues_ReadsUnexportedEmbeddedFields(t *testing.T) {
	now := time.Now().UTC()
	l := mockLabel{Serial: "BX000001", mockTimestamps: mockTimestamps{CreatedAt: now}}

	rows := RowValues([]mockLabel{l}, []string{"serial", "created_at"})

	assert.Equal(t, [][]any{{"BX000001", now}}, rows)
}

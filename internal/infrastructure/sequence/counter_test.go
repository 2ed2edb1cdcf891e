package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"backoffice/internal/domain/audit"
	"backoffice/pkg/logger"
)

func TestReserveQuery(t *testing.T) {
	sql, args, err := reserveQuery("EMPLOYEE:FE", 1).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE sys_sequences SET next_value = next_value + $1, updated_at = now() WHERE ")
	assert.Contains(t, sql, "active = $2 AND namespace_key = $3")
	assert.Contains(t, sql, "RETURNING next_value - $4")
	assert.Equal(t, []any{int64(1), true, "EMPLOYEE:FE", int64(1)}, args)
}

func TestReserveOrCreateQuery(t *testing.T) {
	sql, args, err := reserveOrCreateQuery("BARCODE:BX", 5).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO sys_sequences (namespace_key,next_value,active,created_at,updated_at) VALUES ($1,$2,$3,now(),now())")
	assert.Contains(t, sql, "ON CONFLICT (namespace_key) DO UPDATE")
	assert.Contains(t, sql, "SET next_value = sys_sequences.next_value + $4")
	assert.Contains(t, sql, "WHERE sys_sequences.active")
	assert.Contains(t, sql, "RETURNING next_value - $5")
	// A new row starts at 1 and ends at 1+n, so RETURNING yields 1.
	assert.Equal(t, []any{"BARCODE:BX", int64(6), true, int64(5), int64(5)}, args)
}

func TestSeedQuery_NeverLowers(t *testing.T) {
	sql, args, err := seedQuery("EMPLOYEE:QA", 42).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "GREATEST(sys_sequences.next_value, EXCLUDED.next_value)")
	assert.Equal(t, []any{"EMPLOYEE:QA", int64(42), true}, args)
}

type failingRecorder struct{ err error }

func (r failingRecorder) Record(context.Context, audit.Action, string, map[string]any) error {
	return r.err
}

func TestRecordAudit_LogsLostEntries(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := logger.WithLogger(context.Background(), &logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	recordAudit(ctx, failingRecorder{err: errors.New("connection reset")}, audit.ActionCounterSeeded, "BARCODE:BX", nil)

	entries := logs.FilterMessage("audit write failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "BARCODE:BX", fields["key"])
	assert.Equal(t, "connection reset", fields["error"])

	recordAudit(ctx, audit.Nop{}, audit.ActionCounterSeeded, "BARCODE:BX", nil)
	assert.Equal(t, 1, logs.Len())
}

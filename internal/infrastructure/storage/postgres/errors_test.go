package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"backoffice/internal/core/apperror"
)

func TestClassifyError(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "barcodes_serial_key"}
	deadlock := &pgconn.PgError{Code: "40P01"}
	serialization := &pgconn.PgError{Code: "40001"}

	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"unique violation", fmt.Errorf("insert: %w", unique), apperror.CodeConflict, false},
		{"deadlock", deadlock, apperror.CodeConflict, true},
		{"serialization", serialization, apperror.CodeConflict, true},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperror.CodeUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.True(t, apperror.HasCode(got, tt.code), "got %v", got)
			assert.Equal(t, tt.retryable, apperror.IsRetryable(got))
			assert.True(t, errors.Is(got, tt.err) || errors.Is(got, errors.Unwrap(tt.err)))
		})
	}
}

func TestClassifyError_PassThrough(t *testing.T) {
	assert.NoError(t, ClassifyError(nil))

	appErr := apperror.NewValidation("bad prefix")
	assert.Same(t, appErr, ClassifyError(appErr))

	plain := errors.New("boom")
	assert.Equal(t, plain, ClassifyError(plain))
}

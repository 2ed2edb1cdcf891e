// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces, not on a concrete database driver.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK and nested transaction support.
//
// The actual implementation lives in infrastructure/storage/postgres.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Detector reports whether ctx carries an open transaction.
// Allocators that rely on the enclosing transaction for serialization use it
// to refuse running outside one.
type Detector interface {
	InTransaction(ctx context.Context) bool
}

package sequence

import (
	"context"
	"time"
)

// Counter allocates numbers from a persistent counter row (sys_sequences).
// Every method is a single atomic statement against the store; implementations
// must never read, compute in memory and write back in separate round-trips.
//
// Outside a transaction, a successful Next or Reserve advances the counter
// durably even if the caller later fails to use the number. Gaps are accepted,
// reuse of an issued number is not. Inside a transaction the advance commits
// or rolls back with it: a rolled-back reservation issued nothing, so its
// numbers are handed out again.
type Counter interface {
	// Next returns the current next value and advances it by one.
	// Unknown key: NotFound unless autoCreate, which creates the row at 1.
	Next(ctx context.Context, key string, autoCreate bool) (int64, error)

	// Reserve advances the counter by n and returns the first reserved value.
	// The reserved range is [first, first+n).
	Reserve(ctx context.Context, key string, n int64, autoCreate bool) (int64, error)

	// Preview returns the next value without mutating it.
	// Unknown key: NotFound, never created implicitly.
	Preview(ctx context.Context, key string) (int64, error)
}

// Seeder raises a counter to at least value, creating it if needed.
// Never lowers a counter.
type Seeder interface {
	Seed(ctx context.Context, key string, value int64) (int64, error)
}

// Admin exposes counter lifecycle operations.
type Admin interface {
	Seeder
	Create(ctx context.Context, key string, nextValue int64) (*Info, error)
	SetActive(ctx context.Context, key string, active bool) error
	Get(ctx context.Context, key string) (*Info, error)
}

// Info is the persisted state of one counter.
type Info struct {
	Key       string    `db:"namespace_key" json:"key"`
	NextValue int64     `db:"next_value" json:"nextValue"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// BatchAllocator returns the first of count consecutive numbers for prefix.
// It runs inside the caller's transaction; the caller allocates
// first .. first+count-1.
type BatchAllocator interface {
	NextBatch(ctx context.Context, prefix string, count int) (int64, error)
}

// Previewer reports the frontier for prefix without allocating.
type Previewer interface {
	PreviewNext(ctx context.Context, prefix string) (int64, error)
}

package sequence

import (
	"context"

	"backoffice/internal/core/apperror"
	coresequence "backoffice/internal/core/sequence"
	"backoffice/internal/core/tx"
	"backoffice/pkg/logger"
)

var (
	_ coresequence.BatchAllocator = (*CounterBatchAllocator)(nil)
	_ coresequence.Previewer      = (*CounterBatchAllocator)(nil)
)

// CounterBatchAllocator allocates barcode numbers from the BARCODE:<prefix>
// counter. A prefix without a counter is seeded once from a scan of existing
// serials, under the same advisory lock the scan allocator uses, so the
// counter starts past every serial already issued.
type CounterBatchAllocator struct {
	txManager tx.Manager
	counter   coresequence.Counter
	seeder    coresequence.Seeder
	scan      *ScanAllocator
}

// NewCounterBatchAllocator creates a counter-backed barcode allocator.
func NewCounterBatchAllocator(txManager tx.Manager, counter coresequence.Counter, seeder coresequence.Seeder, scan *ScanAllocator) *CounterBatchAllocator {
	return &CounterBatchAllocator{txManager: txManager, counter: counter, seeder: seeder, scan: scan}
}

// NextBatch reserves count consecutive numbers and returns the first.
// The reservation joins the caller's transaction, so a batch whose insert
// fails returns its numbers to the counter.
func (a *CounterBatchAllocator) NextBatch(ctx context.Context, prefix string, count int) (int64, error) {
	key := coresequence.KindBarcode.Key(prefix)

	first, err := a.counter.Reserve(ctx, key, int64(count), false)
	if !apperror.IsNotFound(err) {
		return first, err
	}

	if _, err := a.seedFromScan(ctx, prefix); err != nil {
		return 0, err
	}
	return a.counter.Reserve(ctx, key, int64(count), false)
}

// PreviewNext reads the counter, falling back to the scan frontier for a
// prefix that has not been seeded yet.
func (a *CounterBatchAllocator) PreviewNext(ctx context.Context, prefix string) (int64, error) {
	next, err := a.counter.Preview(ctx, coresequence.KindBarcode.Key(prefix))
	if apperror.IsNotFound(err) {
		return a.scan.PreviewNext(ctx, prefix)
	}
	return next, err
}

// Backfill seeds the prefix counter from existing serials in its own
// transaction and returns the counter's next value. Safe to repeat.
func (a *CounterBatchAllocator) Backfill(ctx context.Context, prefix string) (int64, error) {
	if err := coresequence.KindBarcode.ValidatePrefix(prefix); err != nil {
		return 0, err
	}

	var next int64
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		next, err = a.seedFromScan(ctx, prefix)
		return err
	})
	return next, err
}

func (a *CounterBatchAllocator) seedFromScan(ctx context.Context, prefix string) (int64, error) {
	frontier, err := a.scan.NextBatch(ctx, prefix, 0)
	if err != nil {
		return 0, err
	}

	next, err := a.seeder.Seed(ctx, coresequence.KindBarcode.Key(prefix), frontier)
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "barcode counter seeded from existing serials",
		"prefix", prefix, "frontier", frontier, "next_value", next)
	return next, nil
}

package sequence

import (
	"context"
	"errors"

	"backoffice/internal/core/apperror"
	coresequence "backoffice/internal/core/sequence"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain/barcode"
)

// DefaultScanWindow is how many recent serials a scan inspects.
const DefaultScanWindow = 500

// Locker takes a lock that lives until the enclosing transaction ends.
type Locker interface {
	AdvisoryXactLock(ctx context.Context, key string) error
}

// SerialSource lists existing serials, newest first.
type SerialSource interface {
	RecentSerials(ctx context.Context, prefix string, limit int) ([]string, error)
}

var (
	_ coresequence.BatchAllocator = (*ScanAllocator)(nil)
	_ coresequence.Previewer      = (*ScanAllocator)(nil)
	_ SerialSource                = (barcode.Repository)(nil)
)

// ScanAllocator derives the next barcode number from the largest numeric
// suffix among recent serials. It must run inside the transaction that
// inserts the allocated rows; the per-prefix advisory lock keeps two scans
// from observing the same frontier.
type ScanAllocator struct {
	detector tx.Detector
	locker   Locker
	serials  SerialSource
	window   int
}

// NewScanAllocator creates a scan allocator. window <= 0 uses DefaultScanWindow.
func NewScanAllocator(detector tx.Detector, locker Locker, serials SerialSource, window int) *ScanAllocator {
	if window <= 0 {
		window = DefaultScanWindow
	}
	return &ScanAllocator{detector: detector, locker: locker, serials: serials, window: window}
}

// NextBatch returns max existing suffix + 1, or 1 when no serial matches.
// count does not affect the result: the caller inserts first..first+count-1
// before the lock is released.
func (a *ScanAllocator) NextBatch(ctx context.Context, prefix string, count int) (int64, error) {
	if !a.detector.InTransaction(ctx) {
		return 0, apperror.NewInternal(errors.New("scan allocation requires an enclosing transaction"))
	}
	if err := a.lock(ctx, prefix); err != nil {
		return 0, err
	}
	return a.frontier(ctx, prefix)
}

// PreviewNext reports what NextBatch would return right now, without locking.
func (a *ScanAllocator) PreviewNext(ctx context.Context, prefix string) (int64, error) {
	return a.frontier(ctx, prefix)
}

func (a *ScanAllocator) lock(ctx context.Context, prefix string) error {
	return a.locker.AdvisoryXactLock(ctx, "barcode:"+prefix)
}

func (a *ScanAllocator) frontier(ctx context.Context, prefix string) (int64, error) {
	serials, err := a.serials.RecentSerials(ctx, prefix, a.window)
	if err != nil {
		return 0, err
	}
	return MaxSuffix(prefix, serials) + 1, nil
}

// MaxSuffix returns the largest numeric suffix among serials that match
// ^prefix\d+$, or 0. Serials of another shape are ignored.
func MaxSuffix(prefix string, serials []string) int64 {
	re := coresequence.SuffixPattern(prefix)
	var highest int64
	for _, s := range serials {
		if n, ok := coresequence.ParseSuffix(re, s); ok && n > highest {
			highest = n
		}
	}
	return highest
}

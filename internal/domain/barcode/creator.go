package barcode

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/sequence"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain/audit"
	"backoffice/pkg/logger"
)

// RetryPolicy bounds retries of a batch after serialization failures.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// BatchCreator allocates consecutive serials and persists the matching
// barcode records in one transaction.
type BatchCreator struct {
	txManager tx.Manager
	repo      Repository
	allocator sequence.BatchAllocator
	audit     audit.Recorder
	retry     RetryPolicy
}

// BatchCreatorConfig configures BatchCreator. Audit is optional.
type BatchCreatorConfig struct {
	TxManager tx.Manager
	Repo      Repository
	Allocator sequence.BatchAllocator
	Audit     audit.Recorder
	Retry     RetryPolicy
}

// NewBatchCreator creates a new batch creator.
func NewBatchCreator(cfg BatchCreatorConfig) *BatchCreator {
	retry := cfg.Retry
	if retry.InitialInterval <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &BatchCreator{
		txManager: cfg.TxManager,
		repo:      cfg.Repo,
		allocator: cfg.Allocator,
		audit:     audit.OrNop(cfg.Audit),
		retry:     retry,
	}
}

// CreateBatch validates req, then allocates and inserts req.Count records.
// Either every record is committed or none is. The returned records carry
// consecutive serials in allocation order.
func (c *BatchCreator) CreateBatch(ctx context.Context, req BatchRequest) ([]*Barcode, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		created  []*Barcode
		attempts int
	)
	op := func() error {
		attempts++
		items, err := c.createOnce(ctx, req)
		if err != nil {
			if isSerializationConflict(err) {
				logger.Warn(ctx, "batch allocation conflict, retrying",
					"prefix", req.Prefix, "attempt", attempts, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		created = items
		return nil
	}

	if err := backoff.Retry(op, c.retry.backOff(ctx)); err != nil {
		return nil, err
	}

	if err := c.audit.Record(ctx, audit.ActionBatchCreated, req.Prefix, map[string]any{
		"productId": req.ProductID.String(),
		"serials":   Serials(created),
	}); err != nil {
		logger.Warn(ctx, "audit write failed", "action", audit.ActionBatchCreated, "error", err)
	}

	logger.Info(ctx, "barcode batch created",
		"prefix", req.Prefix,
		"count", len(created),
		"first", created[0].Serial,
		"last", created[len(created)-1].Serial)

	return created, nil
}

func (c *BatchCreator) createOnce(ctx context.Context, req BatchRequest) ([]*Barcode, error) {
	var items []*Barcode

	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		first, err := c.allocator.NextBatch(ctx, req.Prefix, req.Count)
		if err != nil {
			return err
		}

		// Check the whole range fits before inserting anything.
		if _, err := sequence.Format(sequence.KindBarcode, req.Prefix, first+int64(req.Count)-1); err != nil {
			return err
		}

		now := time.Now().UTC()
		items = lo.Times(req.Count, func(i int) *Barcode {
			serial, _ := sequence.Format(sequence.KindBarcode, req.Prefix, first+int64(i))
			return &Barcode{
				ID:        id.New(),
				Serial:    serial,
				ProductID: req.ProductID,
				CreatedAt: now,
				UpdatedAt: now,
			}
		})

		return c.repo.InsertBatch(ctx, items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func isSerializationConflict(err error) bool {
	return apperror.HasCode(err, apperror.CodeConflict) && apperror.IsRetryable(err)
}

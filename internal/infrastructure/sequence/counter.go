// Package sequence provides PostgreSQL implementations of the identifier
// allocators declared in core/sequence.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"backoffice/internal/core/apperror"
	coresequence "backoffice/internal/core/sequence"
	"backoffice/internal/domain/audit"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/pkg/logger"
)

const sequencesTable = "sys_sequences"

var infoColumns = []string{"namespace_key", "next_value", "active", "created_at", "updated_at"}

// Ensure compile-time interface compliance.
var (
	_ coresequence.Counter = (*CounterService)(nil)
	_ coresequence.Admin   = (*CounterService)(nil)
)

// CounterService allocates from sys_sequences rows. Every mutation is a
// single UPSERT/UPDATE ... RETURNING, so PostgreSQL's row lock serializes
// concurrent callers on the same key.
type CounterService struct {
	txManager *postgres.TxManager
	audit     audit.Recorder
}

// NewCounterService creates a counter service. recorder may be nil.
func NewCounterService(txManager *postgres.TxManager, recorder audit.Recorder) *CounterService {
	return &CounterService{txManager: txManager, audit: audit.OrNop(recorder)}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Next implements coresequence.Counter.
func (s *CounterService) Next(ctx context.Context, key string, autoCreate bool) (int64, error) {
	return s.Reserve(ctx, key, 1, autoCreate)
}

// Reserve implements coresequence.Counter.
func (s *CounterService) Reserve(ctx context.Context, key string, n int64, autoCreate bool) (int64, error) {
	if n < 1 {
		return 0, apperror.NewValidation("reserve count must be positive").WithDetail("count", n)
	}

	q := reserveQuery(key, n)
	if autoCreate {
		q = reserveOrCreateQuery(key, n)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reserve: %w", err)
	}

	var first int64
	err = s.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&first)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the key is unknown or the row is inactive.
		return 0, s.explainMiss(ctx, key)
	}
	if err != nil {
		return 0, postgres.ClassifyError(fmt.Errorf("reserve %q: %w", key, err))
	}
	return first, nil
}

// Preview implements coresequence.Counter.
func (s *CounterService) Preview(ctx context.Context, key string) (int64, error) {
	info, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return info.NextValue, nil
}

// Seed raises the counter to at least value, creating it when missing.
func (s *CounterService) Seed(ctx context.Context, key string, value int64) (int64, error) {
	if value < 1 {
		return 0, apperror.NewValidation("seed value must be positive").WithDetail("value", value)
	}

	sql, args, err := seedQuery(key, value).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build seed: %w", err)
	}

	var next int64
	if err := s.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&next); err != nil {
		return 0, postgres.ClassifyError(fmt.Errorf("seed %q: %w", key, err))
	}

	s.record(ctx, audit.ActionCounterSeeded, key, map[string]any{"requested": value, "nextValue": next})
	return next, nil
}

// Create registers a new counter. An existing key is a Conflict.
func (s *CounterService) Create(ctx context.Context, key string, nextValue int64) (*coresequence.Info, error) {
	if nextValue < 1 {
		return nil, apperror.NewValidation("nextValue must be positive").WithDetail("nextValue", nextValue)
	}

	sql, args, err := builder().
		Insert(sequencesTable).
		Columns("namespace_key", "next_value", "active", "created_at", "updated_at").
		Values(key, nextValue, true, squirrel.Expr("now()"), squirrel.Expr("now()")).
		Suffix("RETURNING " + strings.Join(infoColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build create: %w", err)
	}

	var info coresequence.Info
	if err := pgxscan.Get(ctx, s.txManager.GetQuerier(ctx), &info, sql, args...); err != nil {
		err = postgres.ClassifyError(fmt.Errorf("create %q: %w", key, err))
		if apperror.IsConflict(err) {
			return nil, apperror.NewConflict("sequence already exists").WithDetail("key", key).WithCause(err)
		}
		return nil, err
	}

	s.record(ctx, audit.ActionCounterCreated, key, map[string]any{"nextValue": nextValue})
	return &info, nil
}

// SetActive enables or disables allocation from key.
func (s *CounterService) SetActive(ctx context.Context, key string, active bool) error {
	sql, args, err := builder().
		Update(sequencesTable).
		Set("active", active).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"namespace_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set active: %w", err)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.ClassifyError(fmt.Errorf("set active %q: %w", key, err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sequence", key)
	}

	s.record(ctx, audit.ActionCounterToggled, key, map[string]any{"active": active})
	return nil
}

// Get returns the counter state or NotFound.
func (s *CounterService) Get(ctx context.Context, key string) (*coresequence.Info, error) {
	sql, args, err := builder().
		Select(infoColumns...).
		From(sequencesTable).
		Where(squirrel.Eq{"namespace_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get: %w", err)
	}

	var info coresequence.Info
	if err := pgxscan.Get(ctx, s.txManager.GetQuerier(ctx), &info, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sequence", key)
		}
		return nil, postgres.ClassifyError(fmt.Errorf("get %q: %w", key, err))
	}
	return &info, nil
}

func (s *CounterService) explainMiss(ctx context.Context, key string) error {
	info, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !info.Active {
		return apperror.NewSequenceDisabled(key)
	}
	// Row reappeared active between the two statements; let the caller retry.
	return apperror.NewRetryableConflict("sequence changed concurrently").WithDetail("key", key)
}

func (s *CounterService) record(ctx context.Context, action audit.Action, key string, payload map[string]any) {
	recordAudit(ctx, s.audit, action, key, payload)
}

// recordAudit never fails the counter operation; a lost entry is logged.
func recordAudit(ctx context.Context, r audit.Recorder, action audit.Action, key string, payload map[string]any) {
	if err := r.Record(ctx, action, key, payload); err != nil {
		logger.Warn(ctx, "audit write failed", "action", action, "key", key, "error", err)
	}
}

// reserveQuery advances an existing active counter by n and returns the
// first value of the reserved range.
func reserveQuery(key string, n int64) squirrel.Sqlizer {
	return builder().
		Update(sequencesTable).
		Set("next_value", squirrel.Expr("next_value + ?", n)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"namespace_key": key, "active": true}).
		Suffix("RETURNING next_value - ?", n)
}

// reserveOrCreateQuery is reserveQuery that creates a missing counter at 1.
// The WHERE on the conflict branch leaves inactive rows untouched, in which
// case nothing is returned.
func reserveOrCreateQuery(key string, n int64) squirrel.Sqlizer {
	return builder().
		Insert(sequencesTable).
		Columns("namespace_key", "next_value", "active", "created_at", "updated_at").
		Values(key, 1+n, true, squirrel.Expr("now()"), squirrel.Expr("now()")).
		Suffix(`ON CONFLICT (namespace_key) DO UPDATE
			SET next_value = sys_sequences.next_value + ?, updated_at = now()
			WHERE sys_sequences.active
			RETURNING next_value - ?`, n, n)
}

// seedQuery never lowers an existing counter.
func seedQuery(key string, value int64) squirrel.Sqlizer {
	return builder().
		Insert(sequencesTable).
		Columns("namespace_key", "next_value", "active", "created_at", "updated_at").
		Values(key, value, true, squirrel.Expr("now()"), squirrel.Expr("now()")).
		Suffix(`ON CONFLICT (namespace_key) DO UPDATE
			SET next_value = GREATEST(sys_sequences.next_value, EXCLUDED.next_value), updated_at = now()
			RETURNING next_value`)
}

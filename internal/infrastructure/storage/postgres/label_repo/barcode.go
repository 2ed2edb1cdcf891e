// Package label_repo provides PostgreSQL repositories for barcode labels.
package label_repo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/id"
	"backoffice/internal/domain/barcode"
	"backoffice/internal/infrastructure/storage/postgres"
)

const barcodesTable = "barcodes"

var _ barcode.Repository = (*BarcodeRepo)(nil)

// BarcodeRepo stores barcode records.
type BarcodeRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
}

// NewBarcodeRepo creates a new barcode repository.
func NewBarcodeRepo(txManager *postgres.TxManager) *BarcodeRepo {
	return &BarcodeRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
	}
}

// builder returns a squirrel builder with PostgreSQL placeholder format.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// InsertBatch copies items into barcodes. Requires a transaction in ctx.
func (r *BarcodeRepo) InsertBatch(ctx context.Context, items []*barcode.Barcode) error {
	if len(items) == 0 {
		return nil
	}
	n, err := postgres.CopyStructs(ctx, r.inserter, barcodesTable, items)
	if err != nil {
		return err
	}
	if n != int64(len(items)) {
		return fmt.Errorf("insert barcodes: copied %d of %d rows", n, len(items))
	}
	return nil
}

// DeleteByIDs removes records by id.
func (r *BarcodeRepo) DeleteByIDs(ctx context.Context, ids []id.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	sql, args, err := deleteByIDsQuery(ids).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.ClassifyError(fmt.Errorf("delete barcodes: %w", err))
	}
	return tag.RowsAffected(), nil
}

// RecentSerials returns up to limit serials with prefix, newest first.
// Ids are UUIDv7, so id order is creation order.
func (r *BarcodeRepo) RecentSerials(ctx context.Context, prefix string, limit int) ([]string, error) {
	sql, args, err := recentSerialsQuery(prefix, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var serials []string
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &serials, sql, args...); err != nil {
		return nil, postgres.ClassifyError(fmt.Errorf("select recent serials: %w", err))
	}
	return serials, nil
}

func deleteByIDsQuery(ids []id.ID) squirrel.DeleteBuilder {
	return builder().
		Delete(barcodesTable).
		Where(squirrel.Eq{"id": ids})
}

// recentSerialsQuery keeps the LIKE for the index and narrows to the exact
// shape with a regex, so BXA rows cannot crowd BX rows out of the window.
func recentSerialsQuery(prefix string, limit int) squirrel.SelectBuilder {
	return builder().
		Select("serial").
		From(barcodesTable).
		Where(squirrel.Like{"serial": escapeLike(prefix) + "%"}).
		Where(squirrel.Expr("serial ~ ?", "^"+regexp.QuoteMeta(prefix)+"[0-9]+$")).
		OrderBy("id DESC").
		Limit(uint64(limit))
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

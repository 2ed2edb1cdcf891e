package barcode

import (
	"context"

	"backoffice/internal/core/id"
)

// Repository persists barcodes. Methods run on the transaction in ctx when
// there is one.
type Repository interface {
	// InsertBatch inserts all items or none.
	InsertBatch(ctx context.Context, items []*Barcode) error

	// DeleteByIDs removes the given records and reports how many were deleted.
	DeleteByIDs(ctx context.Context, ids []id.ID) (int64, error)

	// RecentSerials returns up to limit serials of the form prefix+digits,
	// newest first. Serials of a longer prefix (BXA for BX) never fill the window.
	RecentSerials(ctx context.Context, prefix string, limit int) ([]string, error)
}

// ProductReader loads products for label captions.
type ProductReader interface {
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
}

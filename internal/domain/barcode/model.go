// Package barcode creates batches of serialized barcode records.
package barcode

import (
	"time"

	"github.com/shopspring/decimal"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/sequence"
)

// MaxBatchSize bounds a single allocation request.
const MaxBatchSize = 100

// Barcode is one persisted serial bound to a product.
type Barcode struct {
	ID        id.ID     `db:"id" json:"id"`
	Serial    string    `db:"serial" json:"serial"`
	ProductID id.ID     `db:"product_id" json:"productId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Product is the subset of the product catalog labels need.
type Product struct {
	ID           id.ID           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	PackQuantity decimal.Decimal `db:"pack_quantity" json:"packQuantity"`
}

// BatchRequest asks for Count consecutive serials under Prefix for ProductID.
type BatchRequest struct {
	ProductID id.ID
	Prefix    string
	Count     int
}

// Validate checks the request without touching the store.
func (r BatchRequest) Validate() error {
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("productId is required")
	}
	if err := sequence.KindBarcode.ValidatePrefix(r.Prefix); err != nil {
		return err
	}
	if r.Count < 1 || r.Count > MaxBatchSize {
		return apperror.NewValidation("count must be between 1 and 100").
			WithDetail("count", r.Count)
	}
	return nil
}

// Serials returns the serial strings of items in order.
func Serials(items []*Barcode) []string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = b.Serial
	}
	return out
}

// IDs returns the record ids of items in order.
func IDs(items []*Barcode) []id.ID {
	out := make([]id.ID, len(items))
	for i, b := range items {
		out[i] = b.ID
	}
	return out
}

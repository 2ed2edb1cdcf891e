// Package labels turns an allocation request into a printable label sheet.
package labels

import (
	"context"

	"github.com/shopspring/decimal"

	"backoffice/internal/core/id"
	"backoffice/internal/domain/barcode"
)

// Label is one printable cell: a serial and its caption.
type Label struct {
	Serial       string
	ProductName  string
	PackQuantity decimal.Decimal
}

// Renderer composes labels into one document.
// An empty result is an error, never a success.
type Renderer interface {
	Render(ctx context.Context, labels []Label) ([]byte, error)
}

// SerialError is a render failure pinned to one serial.
type SerialError interface {
	error
	FailedSerial() string
}

// Publisher persists a rendered artifact under key.
type Publisher interface {
	WriteFile(ctx context.Context, key string, data []byte, contentType string) error
}

// Request asks for Count labels under Prefix for ProductID.
type Request struct {
	ProductID id.ID
	Prefix    string
	Count     int
}

func (r Request) batch() barcode.BatchRequest {
	return barcode.BatchRequest{ProductID: r.ProductID, Prefix: r.Prefix, Count: r.Count}
}

// Result is a committed batch and its rendered artifact.
type Result struct {
	ArtifactKey string
	Artifact    []byte
	ContentType string
	Records     []*barcode.Barcode
}

// Identifiers returns the serials of the batch in allocation order.
func (r *Result) Identifiers() []string {
	return barcode.Serials(r.Records)
}

// CreatedCount is the number of committed records.
func (r *Result) CreatedCount() int {
	return len(r.Records)
}

// BuildLabels pairs every record with the product caption.
func BuildLabels(records []*barcode.Barcode, product *barcode.Product) []Label {
	out := make([]Label, len(records))
	for i, rec := range records {
		out[i] = Label{
			Serial:       rec.Serial,
			ProductName:  product.Name,
			PackQuantity: product.PackQuantity,
		}
	}
	return out
}

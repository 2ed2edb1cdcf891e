package label_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/barcode"
	"backoffice/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

var _ barcode.ProductReader = (*ProductRepo)(nil)

// ProductRepo reads the product fields printed on labels.
type ProductRepo struct {
	txManager *postgres.TxManager
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{txManager: txManager}
}

// GetByID loads a product or returns NotFound.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*barcode.Product, error) {
	sql, args, err := builder().
		Select("id", "name", "pack_quantity").
		From(productsTable).
		Where("id = ?", productID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var p barcode.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, postgres.ClassifyError(fmt.Errorf("get product: %w", err))
	}
	return &p, nil
}

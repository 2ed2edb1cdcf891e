package cache

import (
	"context"
	"strings"
	"sync"

	"backoffice/internal/core/id"
	"backoffice/internal/domain/barcode"
	"backoffice/pkg/logger"
)

// ProductsChannel is the NOTIFY channel the products trigger publishes on.
// The payload is the changed product id.
const ProductsChannel = "products_changed"

var _ barcode.ProductReader = (*ProductCache)(nil)

// ProductCache is a read-through cache over a ProductReader.
// Misses are not cached, so a product created after a failed lookup is
// found on the next request.
type ProductCache struct {
	next  barcode.ProductReader
	mu    sync.RWMutex
	items map[id.ID]barcode.Product
}

// NewProductCache wraps next.
func NewProductCache(next barcode.ProductReader) *ProductCache {
	return &ProductCache{next: next, items: make(map[id.ID]barcode.Product)}
}

// GetByID implements barcode.ProductReader.
func (c *ProductCache) GetByID(ctx context.Context, productID id.ID) (*barcode.Product, error) {
	c.mu.RLock()
	p, ok := c.items[productID]
	c.mu.RUnlock()
	if ok {
		return &p, nil
	}

	loaded, err := c.next.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items[productID] = *loaded
	c.mu.Unlock()

	out := *loaded
	return &out, nil
}

// Invalidate drops one product, or everything when payload is not a product id.
// It has the InvalidationHandler signature.
func (c *ProductCache) Invalidate(channel, payload string) {
	if channel != "" && channel != ProductsChannel {
		return
	}

	productID, err := id.Parse(strings.TrimSpace(payload))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.items = make(map[id.ID]barcode.Product)
		logger.Debug(context.Background(), "product cache flushed")
		return
	}
	delete(c.items, productID)
}

// Len reports how many products are cached.
func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

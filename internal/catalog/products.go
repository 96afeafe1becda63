package catalog

import (
	"context"
	"errors"
)

// ErrProductNotFound indicates the product does not exist for the tenant.
var ErrProductNotFound = errors.New("product not found")

// Product is the slice of catalog data the pricing engine needs.
type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BasePrice int64  `json:"base_price"`
	Category  string `json:"category"`
	Currency  string `json:"currency"`
}

// Source resolves products for price calculations. Implementations are
// tenant-scoped through the request context.
type Source interface {
	Product(ctx context.Context, productID string) (Product, error)
}

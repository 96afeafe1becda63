package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/billing-engine/internal/catalog"
)

// ProductsRepo resolves products scoped to the tenant in context.
type ProductsRepo struct {
	Pool *pgxpool.Pool
}

// Product returns a single product by identifier.
func (r ProductsRepo) Product(ctx context.Context, productID string) (catalog.Product, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	var p catalog.Product
	err = r.Pool.QueryRow(ctx, `
		SELECT id, name, base_price, category, currency
		FROM products
		WHERE tenant_id = $1 AND id = $2`,
		tid, productID).Scan(&p.ID, &p.Name, &p.BasePrice, &p.Category, &p.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// UpsertProduct stores or refreshes a product row. Used by seeding tools; the
// catalog itself is owned by an upstream service.
func (r ProductsRepo) UpsertProduct(ctx context.Context, p catalog.Product) error {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.Pool.Exec(ctx, `
		INSERT INTO products (tenant_id, id, name, base_price, category, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET name = EXCLUDED.name, base_price = EXCLUDED.base_price,
		    category = EXCLUDED.category, currency = EXCLUDED.currency`,
		tid, p.ID, p.Name, p.BasePrice, p.Category, p.Currency)
	return err
}

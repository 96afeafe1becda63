package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/tax"
)

const rateColumns = `id, name, rate::text, jurisdiction, tax_type, is_compound, is_inclusive,
	threshold_amount, created_at`

// RatesRepo persists tax rates scoped to the tenant in context.
type RatesRepo struct {
	Pool *pgxpool.Pool
}

// InsertTaxRate stores a new rate.
func (r RatesRepo) InsertTaxRate(ctx context.Context, rate tax.Rate) (tax.Rate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return tax.Rate{}, err
	}
	if rate.ID == uuid.Nil {
		rate.ID = uuid.New()
	}
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO tax_rates (
			id, tenant_id, name, rate, jurisdiction, tax_type,
			is_compound, is_inclusive, threshold_amount
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		RETURNING `+rateColumns,
		rate.ID, tid, rate.Name, rate.Rate.String(), rate.Jurisdiction, rate.TaxType,
		rate.IsCompound, rate.IsInclusive, rate.ThresholdAmount,
	)
	return scanRate(row)
}

// ListTaxRatesByJurisdiction returns the rates for an exact jurisdiction plus
// wildcard rates, in insertion order.
func (r RatesRepo) ListTaxRatesByJurisdiction(ctx context.Context, jurisdiction string) ([]tax.Rate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.Pool.Query(ctx, `
		SELECT `+rateColumns+`
		FROM tax_rates
		WHERE tenant_id = $1 AND (jurisdiction = $2 OR jurisdiction = $3)
		ORDER BY created_at ASC, id ASC`,
		tid, jurisdiction, tax.JurisdictionWildcard)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRates(rows)
}

// ListTaxRates returns every rate for the tenant in insertion order.
func (r RatesRepo) ListTaxRates(ctx context.Context) ([]tax.Rate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+rateColumns+` FROM tax_rates WHERE tenant_id = $1 ORDER BY created_at ASC, id ASC`, tid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRates(rows)
}

func collectRates(rows pgx.Rows) ([]tax.Rate, error) {
	var rates []tax.Rate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func scanRate(row pgx.Row) (tax.Rate, error) {
	var (
		rate     tax.Rate
		rateText string
	)
	err := row.Scan(
		&rate.ID, &rate.Name, &rateText, &rate.Jurisdiction, &rate.TaxType,
		&rate.IsCompound, &rate.IsInclusive, &rate.ThresholdAmount, &rate.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return tax.Rate{}, tax.ErrRateNotFound
	}
	if err != nil {
		return tax.Rate{}, err
	}
	rate.Rate, err = decimal.NewFromString(rateText)
	if err != nil {
		return tax.Rate{}, err
	}
	rate.CreatedAt = rate.CreatedAt.UTC()
	return rate, nil
}

package tax

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/obs"
)

// Querier captures the persistence methods required by the Registry. All
// implementations are tenant-scoped through the request context.
type Querier interface {
	InsertTaxRate(ctx context.Context, rate Rate) (Rate, error)
	ListTaxRatesByJurisdiction(ctx context.Context, jurisdiction string) ([]Rate, error)
	ListTaxRates(ctx context.Context) ([]Rate, error)
}

// Registry owns tax rates and the per-jurisdiction cache. Lookups for a
// jurisdiction include wildcard rates; results are cached until a write for
// that jurisdiction invalidates them.
type Registry struct {
	Q     Querier
	Cache *Cache
}

// AddRateParams are the caller-supplied fields for a new rate.
type AddRateParams struct {
	Name            string          `json:"name" validate:"required"`
	Rate            decimal.Decimal `json:"rate"`
	Jurisdiction    string          `json:"jurisdiction" validate:"required"`
	TaxType         string          `json:"tax_type"`
	IsCompound      bool            `json:"is_compound"`
	IsInclusive     bool            `json:"is_inclusive"`
	ThresholdAmount *int64          `json:"threshold_amount,omitempty"`
}

// RatesFor returns the rates applicable to a jurisdiction, wildcard rates
// included, in insertion order. Absence of rates is not an error.
func (r *Registry) RatesFor(ctx context.Context, jurisdiction string) ([]Rate, error) {
	if r == nil || r.Q == nil {
		return nil, errors.New("tax registry not configured")
	}
	jurisdiction = strings.TrimSpace(jurisdiction)
	if rates, ok := r.Cache.Lookup(ctx, jurisdiction); ok {
		obs.CountRateCache("hit")
		return rates, nil
	}
	obs.CountRateCache("miss")
	rates, err := r.Q.ListTaxRatesByJurisdiction(ctx, jurisdiction)
	if err != nil {
		return nil, err
	}
	r.Cache.Store(ctx, jurisdiction, rates)
	return rates, nil
}

// AddRate validates and persists a rate, then invalidates the affected cache
// entries. An invalidation failure is surfaced to the caller even though the
// rate itself was stored.
func (r *Registry) AddRate(ctx context.Context, params AddRateParams) (Rate, error) {
	if r == nil || r.Q == nil {
		return Rate{}, errors.New("tax registry not configured")
	}
	rate := Rate{
		Name:            strings.TrimSpace(params.Name),
		Rate:            params.Rate,
		Jurisdiction:    strings.TrimSpace(params.Jurisdiction),
		TaxType:         strings.TrimSpace(params.TaxType),
		IsCompound:      params.IsCompound,
		IsInclusive:     params.IsInclusive,
		ThresholdAmount: params.ThresholdAmount,
	}
	if err := rate.Validate(); err != nil {
		return Rate{}, err
	}
	stored, err := r.Q.InsertTaxRate(ctx, rate)
	if err != nil {
		return Rate{}, err
	}
	if err := r.Cache.Invalidate(ctx, stored.Jurisdiction); err != nil {
		return stored, err
	}
	return stored, nil
}

// List returns every rate for the tenant.
func (r *Registry) List(ctx context.Context) ([]Rate, error) {
	if r == nil || r.Q == nil {
		return nil, errors.New("tax registry not configured")
	}
	return r.Q.ListTaxRates(ctx)
}

// EffectiveRate folds the jurisdiction's rates into a single displayable
// percentage. It uses the same fold as the inclusive combined-rate step and is
// meant for display, not money computation.
func (r *Registry) EffectiveRate(ctx context.Context, jurisdiction string) (decimal.Decimal, error) {
	rates, err := r.RatesFor(ctx, jurisdiction)
	if err != nil {
		return decimal.Zero, err
	}
	return CombinedRate(rates), nil
}

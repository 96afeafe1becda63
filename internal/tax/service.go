package tax

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/obs"
)

// Service combines the pure calculator with registry lookups. When the caller
// does not supply rates explicitly they are resolved from the registry for the
// given jurisdiction.
type Service struct {
	Registry *Registry
}

// Calculate computes tax for an amount. Rates may be passed explicitly;
// otherwise the jurisdiction's rates (wildcard included) are looked up.
func (s *Service) Calculate(ctx context.Context, amount int64, jurisdiction string, rates []Rate, inclusive bool) (Result, error) {
	if s == nil {
		return Result{}, errors.New("tax service not configured")
	}
	resolved, err := s.resolveRates(ctx, jurisdiction, rates)
	if err != nil {
		return Result{}, err
	}
	result, err := Calculate(amount, resolved, inclusive)
	if err != nil {
		obs.CountTaxCalculation(modeLabel(inclusive), "error")
		return Result{}, err
	}
	obs.CountTaxCalculation(modeLabel(inclusive), "ok")
	return result, nil
}

// CalculateLineItems applies Calculate independently to each line item;
// tax-exempt items get zero tax.
func (s *Service) CalculateLineItems(ctx context.Context, items []LineItem, jurisdiction string, rates []Rate, inclusive bool) (LineItemsResult, error) {
	if s == nil {
		return LineItemsResult{}, errors.New("tax service not configured")
	}
	resolved, err := s.resolveRates(ctx, jurisdiction, rates)
	if err != nil {
		return LineItemsResult{}, err
	}
	return CalculateLineItems(items, resolved, inclusive)
}

// ReverseCalculate extracts tax from a known tax-inclusive total. It is
// Calculate forced into inclusive mode.
func (s *Service) ReverseCalculate(ctx context.Context, totalAmount int64, jurisdiction string, rates []Rate) (Result, error) {
	return s.Calculate(ctx, totalAmount, jurisdiction, rates, true)
}

// EffectiveRate exposes the registry's combined display rate.
func (s *Service) EffectiveRate(ctx context.Context, jurisdiction string) (decimal.Decimal, error) {
	if s == nil || s.Registry == nil {
		return decimal.Zero, errors.New("tax service not configured")
	}
	return s.Registry.EffectiveRate(ctx, jurisdiction)
}

func (s *Service) resolveRates(ctx context.Context, jurisdiction string, rates []Rate) ([]Rate, error) {
	if rates != nil {
		return rates, nil
	}
	if s.Registry == nil {
		return nil, nil
	}
	return s.Registry.RatesFor(ctx, jurisdiction)
}

func modeLabel(inclusive bool) string {
	if inclusive {
		return "inclusive"
	}
	return "exclusive"
}

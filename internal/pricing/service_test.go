package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/catalog"
	"github.com/noah-isme/billing-engine/internal/currency"
	"github.com/noah-isme/billing-engine/internal/rule"
	"github.com/noah-isme/billing-engine/internal/usage"
)

type stubRuleSource struct {
	rules []rule.PricingRule
	err   error
}

func (s stubRuleSource) List(context.Context, rule.ListFilter) ([]rule.PricingRule, error) {
	return s.rules, s.err
}

type stubProducts struct {
	products map[string]catalog.Product
}

func (s stubProducts) Product(_ context.Context, id string) (catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func newTestService(rules []rule.PricingRule, tracker usage.Tracker) *Service {
	return &Service{
		Rules: stubRuleSource{rules: rules},
		Products: stubProducts{products: map[string]catalog.Product{
			"sub-pro": {ID: "sub-pro", Name: "Pro Subscription", BasePrice: 2990, Category: "subscriptions", Currency: "USD"},
		}},
		Usage: tracker,
		Now:   func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func activePercentRule(value int64) rule.PricingRule {
	return rule.PricingRule{
		ID:            uuid.New(),
		Name:          "promo",
		AppliesToAll:  true,
		IsActive:      true,
		DiscountType:  rule.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(value),
	}
}

func TestCalculateAppliesMatchedRules(t *testing.T) {
	tracker := usage.NewMemoryTracker()
	svc := newTestService([]rule.PricingRule{activePercentRule(10)}, tracker)

	result, err := svc.Calculate(context.Background(), CalculateParams{ProductID: "sub-pro", Quantity: 2})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if result.Subtotal != 5980 {
		t.Fatalf("subtotal = %d, want 5980", result.Subtotal)
	}
	if result.FinalPrice != 5382 {
		t.Fatalf("final = %d, want 5382", result.FinalPrice)
	}
	if result.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", result.Currency)
	}
}

func TestCalculateCommitsUsagePreviewDoesNot(t *testing.T) {
	r := activePercentRule(10)
	tracker := usage.NewMemoryTracker()
	svc := newTestService([]rule.PricingRule{r}, tracker)
	params := CalculateParams{ProductID: "sub-pro", Quantity: 1}

	if _, err := svc.Preview(context.Background(), params); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if got := tracker.Count(r.ID); got != 0 {
		t.Fatalf("preview moved usage counter to %d", got)
	}

	if _, err := svc.Calculate(context.Background(), params); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got := tracker.Count(r.ID); got != 1 {
		t.Fatalf("usage = %d, want 1", got)
	}
}

func TestCalculateSkipsCapExhaustedRule(t *testing.T) {
	r := activePercentRule(10)
	tracker := usage.NewMemoryTracker()
	tracker.SetCap(r.ID, 1)
	svc := newTestService([]rule.PricingRule{r}, tracker)
	params := CalculateParams{ProductID: "sub-pro", Quantity: 1}

	first, err := svc.Calculate(context.Background(), params)
	if err != nil {
		t.Fatalf("first calculate: %v", err)
	}
	if len(first.AppliedAdjustments) != 1 {
		t.Fatalf("first call should apply the rule")
	}

	second, err := svc.Calculate(context.Background(), params)
	if err != nil {
		t.Fatalf("second calculate: %v", err)
	}
	if len(second.AppliedAdjustments) != 0 {
		t.Fatal("exhausted rule must be skipped, not fail the calculation")
	}
	if second.FinalPrice != second.Subtotal {
		t.Fatalf("final = %d, want undiscounted %d", second.FinalPrice, second.Subtotal)
	}
}

func TestCalculateRejectsInvalidQuantity(t *testing.T) {
	svc := newTestService(nil, nil)
	if _, err := svc.Calculate(context.Background(), CalculateParams{ProductID: "sub-pro", Quantity: 0}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
}

func TestCalculateUnknownProduct(t *testing.T) {
	svc := newTestService(nil, nil)
	if _, err := svc.Calculate(context.Background(), CalculateParams{ProductID: "missing", Quantity: 1}); !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestCalculateNormalizesCurrency(t *testing.T) {
	svc := newTestService([]rule.PricingRule{activePercentRule(10)}, nil)
	svc.Converter = currency.NewStaticConverter(map[string]decimal.Decimal{
		"USD:EUR": decimal.NewFromFloat(0.5),
	})

	result, err := svc.Preview(context.Background(), CalculateParams{ProductID: "sub-pro", Quantity: 2, Currency: "EUR"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if result.Currency != "USD" {
		t.Fatalf("native currency changed to %q", result.Currency)
	}
	if result.NormalizedCurrency != "EUR" {
		t.Fatalf("normalized currency = %q", result.NormalizedCurrency)
	}
	if result.NormalizedAmount == nil || *result.NormalizedAmount != 2691 {
		t.Fatalf("normalized amount = %v, want 2691", result.NormalizedAmount)
	}
	if result.NormalizedSubtotal == nil || *result.NormalizedSubtotal != 2990 {
		t.Fatalf("normalized subtotal = %v, want 2990", result.NormalizedSubtotal)
	}
}

func TestCalculateMissingConversionRate(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.Preview(context.Background(), CalculateParams{ProductID: "sub-pro", Quantity: 1, Currency: "GBP"})
	if !errors.Is(err, currency.ErrNoConversionRate) {
		t.Fatalf("err = %v, want ErrNoConversionRate", err)
	}
}

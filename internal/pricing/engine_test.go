package pricing

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/rule"
)

func percentRule(name string, value int64) rule.PricingRule {
	return rule.PricingRule{
		ID:            uuid.New(),
		Name:          name,
		DiscountType:  rule.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(value),
	}
}

func fixedRule(name string, value int64) rule.PricingRule {
	return rule.PricingRule{
		ID:            uuid.New(),
		Name:          name,
		DiscountType:  rule.DiscountFixedAmount,
		DiscountValue: decimal.NewFromInt(value),
	}
}

func TestApplyNoRules(t *testing.T) {
	result, err := Apply(1000, 3, nil, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Subtotal != 3000 || result.FinalPrice != 3000 || result.TotalDiscountAmount != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.AppliedAdjustments) != 0 {
		t.Fatalf("adjustments = %v, want none", result.AppliedAdjustments)
	}
}

func TestApplySequentialDiscountsUseRunningTotal(t *testing.T) {
	rules := []rule.PricingRule{percentRule("ten off", 10), percentRule("then ten more", 10)}
	result, err := Apply(10000, 1, rules, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Second discount applies to 9000, not the subtotal.
	if result.AppliedAdjustments[0].Amount != 1000 {
		t.Fatalf("first adjustment = %d, want 1000", result.AppliedAdjustments[0].Amount)
	}
	if result.AppliedAdjustments[1].Amount != 900 {
		t.Fatalf("second adjustment = %d, want 900", result.AppliedAdjustments[1].Amount)
	}
	if result.FinalPrice != 8100 {
		t.Fatalf("final = %d, want 8100", result.FinalPrice)
	}
	if result.TotalDiscountAmount != 1900 {
		t.Fatalf("total discount = %d, want 1900", result.TotalDiscountAmount)
	}
}

func TestApplyClampsAtZero(t *testing.T) {
	rules := []rule.PricingRule{fixedRule("deep cut", 5000), fixedRule("more", 5000)}
	result, err := Apply(600, 10, rules, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.FinalPrice != 0 {
		t.Fatalf("final = %d, want 0 (never negative)", result.FinalPrice)
	}
	// First rule takes 5000, second is clamped to the remaining 1000.
	if result.AppliedAdjustments[1].Amount != 1000 {
		t.Fatalf("clamped adjustment = %d, want 1000", result.AppliedAdjustments[1].Amount)
	}
}

func TestApplyReserverSkipsExhaustedRule(t *testing.T) {
	capped := percentRule("capped", 50)
	open := percentRule("open", 10)

	result, err := Apply(10000, 1, []rule.PricingRule{capped, open}, func(r rule.PricingRule) (bool, error) {
		return r.ID != capped.ID, nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(result.AppliedAdjustments) != 1 {
		t.Fatalf("adjustments = %d, want 1", len(result.AppliedAdjustments))
	}
	if result.AppliedAdjustments[0].RuleID != open.ID {
		t.Fatal("wrong rule applied")
	}
	if result.FinalPrice != 9000 {
		t.Fatalf("final = %d, want 9000", result.FinalPrice)
	}
}

func TestApplyReserverError(t *testing.T) {
	boom := errors.New("tracker down")
	_, err := Apply(1000, 1, []rule.PricingRule{percentRule("any", 5)}, func(rule.PricingRule) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want tracker error", err)
	}
}

func TestApplyUnknownDiscountType(t *testing.T) {
	broken := rule.PricingRule{ID: uuid.New(), Name: "broken", DiscountType: "bogus"}
	if _, err := Apply(1000, 1, []rule.PricingRule{broken}, nil); !errors.Is(err, rule.ErrInvalidPricingRule) {
		t.Fatalf("err = %v, want ErrInvalidPricingRule", err)
	}
}

func TestApplyFractionalPercentRounds(t *testing.T) {
	r := rule.PricingRule{
		ID:            uuid.New(),
		Name:          "odd percent",
		DiscountType:  rule.DiscountPercentage,
		DiscountValue: decimal.NewFromFloat(7.5),
	}
	result, err := Apply(999, 1, []rule.PricingRule{r}, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 7.5% of 999 = 74.925, rounds half-up to 75.
	if result.AppliedAdjustments[0].Amount != 75 {
		t.Fatalf("adjustment = %d, want 75", result.AppliedAdjustments[0].Amount)
	}
}

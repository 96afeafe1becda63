package rule

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validRule() PricingRule {
	return PricingRule{
		Name:          "ten percent off",
		AppliesToAll:  true,
		DiscountType:  DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
	}
}

func TestValidateAcceptsValidRule(t *testing.T) {
	if err := validRule().Validate(decimal.Zero); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	negativeQty := 0
	negativeUses := -1
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*PricingRule)
	}{
		{"empty name", func(r *PricingRule) { r.Name = "  " }},
		{"no applicability", func(r *PricingRule) { r.AppliesToAll = false }},
		{"percentage above ceiling", func(r *PricingRule) { r.DiscountValue = decimal.NewFromInt(150) }},
		{"negative percentage", func(r *PricingRule) { r.DiscountValue = decimal.NewFromInt(-5) }},
		{"negative fixed amount", func(r *PricingRule) {
			r.DiscountType = DiscountFixedAmount
			r.DiscountValue = decimal.NewFromInt(-100)
		}},
		{"unknown discount type", func(r *PricingRule) { r.DiscountType = "bogus" }},
		{"min quantity below one", func(r *PricingRule) { r.MinQuantity = &negativeQty }},
		{"negative max uses", func(r *PricingRule) { r.MaxUses = &negativeUses }},
		{"window inverted", func(r *PricingRule) { r.StartsAt, r.EndsAt = &start, &end }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRule()
			tc.mutate(&r)
			if err := r.Validate(decimal.Zero); !errors.Is(err, ErrInvalidPricingRule) {
				t.Fatalf("err = %v, want ErrInvalidPricingRule", err)
			}
		})
	}
}

func TestValidateHonoursPercentCeiling(t *testing.T) {
	r := validRule()
	r.DiscountValue = decimal.NewFromInt(60)
	if err := r.Validate(decimal.NewFromInt(50)); !errors.Is(err, ErrInvalidPricingRule) {
		t.Fatalf("err = %v, want ceiling violation", err)
	}
	if err := r.Validate(decimal.NewFromInt(75)); err != nil {
		t.Fatalf("unexpected error under higher ceiling: %v", err)
	}
}

func TestValidateSegmentOnlyRuleIsAccepted(t *testing.T) {
	r := validRule()
	r.AppliesToAll = false
	r.CustomerSegments = []string{"vip"}
	if err := r.Validate(decimal.Zero); err != nil {
		t.Fatalf("segment-only applicability should validate: %v", err)
	}
}

func TestActiveAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	r := validRule()
	r.StartsAt, r.EndsAt = &start, &end

	if r.ActiveAt(start.Add(-time.Second)) {
		t.Fatal("active before window start")
	}
	if !r.ActiveAt(start) {
		t.Fatal("window start is inclusive")
	}
	if !r.ActiveAt(end) {
		t.Fatal("window end is inclusive")
	}
	if r.ActiveAt(end.Add(time.Second)) {
		t.Fatal("active after window end")
	}

	open := validRule()
	if !open.ActiveAt(time.Now()) {
		t.Fatal("rule without window should always be active")
	}
}

func TestMatchesTarget(t *testing.T) {
	r := validRule()
	r.AppliesToAll = false
	r.ProductIDs = []string{"sub-pro"}
	r.Categories = []string{"addons"}

	if !r.MatchesTarget("sub-pro", "other") {
		t.Fatal("product match missed")
	}
	if !r.MatchesTarget("other", "addons") {
		t.Fatal("category match missed")
	}
	if r.MatchesTarget("other", "other") {
		t.Fatal("unexpected match")
	}
}

func TestMatchesSegment(t *testing.T) {
	r := validRule()
	if !r.MatchesSegment("anyone") {
		t.Fatal("empty segment list must accept all segments")
	}
	r.CustomerSegments = []string{"vip"}
	if r.MatchesSegment("regular") {
		t.Fatal("segment mismatch accepted")
	}
	if !r.MatchesSegment("vip") {
		t.Fatal("segment match missed")
	}
}

func TestHasUsageHeadroom(t *testing.T) {
	r := validRule()
	if !r.HasUsageHeadroom() {
		t.Fatal("uncapped rule must have headroom")
	}
	cap := 3
	r.MaxUses = &cap
	r.CurrentUses = 2
	if !r.HasUsageHeadroom() {
		t.Fatal("below cap must have headroom")
	}
	r.CurrentUses = 3
	if r.HasUsageHeadroom() {
		t.Fatal("at cap must not have headroom")
	}
}

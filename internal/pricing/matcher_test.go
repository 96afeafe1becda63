package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/rule"
)

var matchNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func candidate(name string, mutate func(*rule.PricingRule)) rule.PricingRule {
	r := rule.PricingRule{
		ID:            uuid.New(),
		Name:          name,
		AppliesToAll:  true,
		IsActive:      true,
		DiscountType:  rule.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(5),
		CreatedAt:     matchNow.Add(-time.Hour),
	}
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func defaultContext() MatchContext {
	return MatchContext{
		ProductID: "sub-pro",
		Category:  "subscriptions",
		Quantity:  1,
		AsOf:      matchNow,
	}
}

func TestMatchFilters(t *testing.T) {
	future := matchNow.Add(time.Hour)
	past := matchNow.Add(-2 * time.Hour)
	minQty := 5
	cap := 3

	cases := []struct {
		name    string
		rule    rule.PricingRule
		matched bool
	}{
		{"active global rule", candidate("ok", nil), true},
		{"inactive", candidate("inactive", func(r *rule.PricingRule) { r.IsActive = false }), false},
		{"not yet started", candidate("future", func(r *rule.PricingRule) { r.StartsAt = &future }), false},
		{"already ended", candidate("expired", func(r *rule.PricingRule) { r.EndsAt = &past }), false},
		{"quantity below minimum", candidate("bulk only", func(r *rule.PricingRule) { r.MinQuantity = &minQty }), false},
		{"product targeted", candidate("product", func(r *rule.PricingRule) {
			r.AppliesToAll = false
			r.ProductIDs = []string{"sub-pro"}
		}), true},
		{"category targeted", candidate("category", func(r *rule.PricingRule) {
			r.AppliesToAll = false
			r.Categories = []string{"subscriptions"}
		}), true},
		{"wrong target", candidate("other product", func(r *rule.PricingRule) {
			r.AppliesToAll = false
			r.ProductIDs = []string{"sub-basic"}
		}), false},
		{"segment mismatch", candidate("vip only", func(r *rule.PricingRule) {
			r.CustomerSegments = []string{"vip"}
		}), false},
		{"usage exhausted", candidate("spent", func(r *rule.PricingRule) {
			r.MaxUses = &cap
			r.CurrentUses = 3
		}), false},
		{"segment-only rule never matches without target", candidate("segment only", func(r *rule.PricingRule) {
			r.AppliesToAll = false
			r.CustomerSegments = []string{"vip"}
		}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match([]rule.PricingRule{tc.rule}, defaultContext())
			if (len(got) == 1) != tc.matched {
				t.Fatalf("matched = %v, want %v", len(got) == 1, tc.matched)
			}
		})
	}
}

func TestMatchOrdersByPriorityThenAge(t *testing.T) {
	older := candidate("older low", func(r *rule.PricingRule) {
		r.Priority = 1
		r.CreatedAt = matchNow.Add(-3 * time.Hour)
	})
	newer := candidate("newer low", func(r *rule.PricingRule) {
		r.Priority = 1
		r.CreatedAt = matchNow.Add(-time.Hour)
	})
	high := candidate("high", func(r *rule.PricingRule) { r.Priority = 9 })

	got := Match([]rule.PricingRule{newer, older, high}, defaultContext())
	if len(got) != 3 {
		t.Fatalf("matched = %d, want 3", len(got))
	}
	if got[0].Name != "high" || got[1].Name != "older low" || got[2].Name != "newer low" {
		t.Fatalf("order = %s, %s, %s", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestMatchTieBreakIsDeterministic(t *testing.T) {
	a := candidate("a", func(r *rule.PricingRule) { r.Priority = 3 })
	b := candidate("b", func(r *rule.PricingRule) {
		r.Priority = 3
		r.CreatedAt = a.CreatedAt
	})

	first := Match([]rule.PricingRule{a, b}, defaultContext())
	second := Match([]rule.PricingRule{b, a}, defaultContext())
	if first[0].ID != second[0].ID || first[1].ID != second[1].ID {
		t.Fatal("identical priority and created_at must still order deterministically")
	}
}

func TestMatchSegmentRuleWithTarget(t *testing.T) {
	r := candidate("vip subscriptions", func(r *rule.PricingRule) {
		r.AppliesToAll = false
		r.Categories = []string{"subscriptions"}
		r.CustomerSegments = []string{"vip"}
	})

	mc := defaultContext()
	if got := Match([]rule.PricingRule{r}, mc); len(got) != 0 {
		t.Fatal("matched without the required segment")
	}
	mc.CustomerSegment = "vip"
	if got := Match([]rule.PricingRule{r}, mc); len(got) != 1 {
		t.Fatal("segment plus target should match")
	}
}

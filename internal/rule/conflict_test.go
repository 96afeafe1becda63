package rule

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func namedRule(name string, priority int, mutate func(*PricingRule)) PricingRule {
	r := PricingRule{
		ID:            uuid.New(),
		Name:          name,
		Priority:      priority,
		IsActive:      true,
		DiscountType:  DiscountPercentage,
		DiscountValue: decimal.NewFromInt(5),
	}
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func TestDetectConflictsSamePriorityOverlap(t *testing.T) {
	a := namedRule("a", 10, func(r *PricingRule) { r.ProductIDs = []string{"sub-pro"} })
	b := namedRule("b", 10, func(r *PricingRule) { r.ProductIDs = []string{"sub-pro", "sub-basic"} })

	conflicts := DetectConflicts([]PricingRule{a, b})
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != ConflictPriorityOverlap || c.Priority != 10 {
		t.Fatalf("unexpected conflict %+v", c)
	}
	if len(c.RuleIDs) != 2 {
		t.Fatalf("rule ids = %v", c.RuleIDs)
	}
}

func TestDetectConflictsAppliesToAllOverlapsEverything(t *testing.T) {
	a := namedRule("global", 5, func(r *PricingRule) { r.AppliesToAll = true })
	b := namedRule("narrow", 5, func(r *PricingRule) { r.Categories = []string{"addons"} })

	if got := DetectConflicts([]PricingRule{a, b}); len(got) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(got))
	}
}

func TestDetectConflictsIgnoresDifferentPriorityAndInactive(t *testing.T) {
	a := namedRule("a", 10, func(r *PricingRule) { r.AppliesToAll = true })
	b := namedRule("b", 20, func(r *PricingRule) { r.AppliesToAll = true })
	c := namedRule("c", 10, func(r *PricingRule) {
		r.AppliesToAll = true
		r.IsActive = false
	})

	if got := DetectConflicts([]PricingRule{a, b, c}); len(got) != 0 {
		t.Fatalf("conflicts = %v, want none", got)
	}
}

func TestDetectConflictsDisjointTargets(t *testing.T) {
	a := namedRule("a", 10, func(r *PricingRule) { r.ProductIDs = []string{"x"} })
	b := namedRule("b", 10, func(r *PricingRule) { r.ProductIDs = []string{"y"} })

	if got := DetectConflicts([]PricingRule{a, b}); len(got) != 0 {
		t.Fatalf("conflicts = %v, want none", got)
	}
}

package pricing

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/billing-engine/internal/money"
	"github.com/noah-isme/billing-engine/internal/rule"
)

// Adjustment records one rule's committed discount.
type Adjustment struct {
	RuleID       uuid.UUID         `json:"rule_id"`
	RuleName     string            `json:"rule_name"`
	DiscountType rule.DiscountType `json:"discount_type"`
	Amount       int64             `json:"amount"`
}

// Result is the outcome of a price calculation. All amounts are minor units.
type Result struct {
	BasePrice           int64        `json:"base_price"`
	Quantity            int          `json:"quantity"`
	Subtotal            int64        `json:"subtotal"`
	TotalDiscountAmount int64        `json:"total_discount_amount"`
	FinalPrice          int64        `json:"final_price"`
	AppliedAdjustments  []Adjustment `json:"applied_adjustments"`
	Currency            string       `json:"currency"`
	NormalizedCurrency  string       `json:"normalized_currency,omitempty"`
	NormalizedAmount    *int64       `json:"normalized_amount,omitempty"`
	NormalizedSubtotal  *int64       `json:"normalized_subtotal,omitempty"`
}

// Reserver commits a rule application against the usage tracker. Returning
// false means the rule hit its cap concurrently and must be skipped without
// an adjustment. A nil Reserver evaluates without committing (preview).
type Reserver func(r rule.PricingRule) (bool, error)

// Apply folds the matched rules, in matcher order, over the subtotal. The
// running total and adjustment list are threaded explicitly through the loop;
// usage is only counted for rules whose discount is actually applied.
func Apply(basePrice int64, quantity int, rules []rule.PricingRule, reserve Reserver) (Result, error) {
	subtotal := basePrice * int64(quantity)
	running := subtotal
	adjustments := make([]Adjustment, 0, len(rules))

	for _, r := range rules {
		amount, err := discountAmount(running, r)
		if err != nil {
			return Result{}, err
		}
		if reserve != nil {
			ok, err := reserve(r)
			if err != nil {
				return Result{}, err
			}
			if !ok {
				continue
			}
		}
		adjustments = append(adjustments, Adjustment{
			RuleID:       r.ID,
			RuleName:     r.Name,
			DiscountType: r.DiscountType,
			Amount:       amount,
		})
		running -= amount
	}

	return Result{
		BasePrice:           basePrice,
		Quantity:            quantity,
		Subtotal:            subtotal,
		TotalDiscountAmount: subtotal - running,
		FinalPrice:          running,
		AppliedAdjustments:  adjustments,
	}, nil
}

// discountAmount computes one rule's discount against the running total. The
// discount is clamped so it never drives the running total below zero. The
// switch is exhaustive over the closed DiscountType enum.
func discountAmount(running int64, r rule.PricingRule) (int64, error) {
	var amount int64
	switch r.DiscountType {
	case rule.DiscountPercentage:
		amount = money.Percent(running, r.DiscountValue)
	case rule.DiscountFixedAmount:
		amount = money.RoundHalfUp(r.DiscountValue)
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", rule.ErrInvalidPricingRule, r.DiscountType)
	}
	if amount > running {
		amount = running
	}
	if amount < 0 {
		amount = 0
	}
	return amount, nil
}

package rule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPricingRule is returned when a rule fails validation at
	// create or update time. It is always surfaced to the caller and never
	// retried automatically.
	ErrInvalidPricingRule = errors.New("invalid pricing rule")
	// ErrRuleNotFound indicates the rule does not exist for the tenant.
	ErrRuleNotFound = errors.New("pricing rule not found")
)

// DiscountType is the closed set of supported discount kinds.
type DiscountType string

const (
	// DiscountPercentage discounts a percentage of the running total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount discounts a flat amount in minor units.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Valid reports whether the discount type is a known member of the enum.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixedAmount:
		return true
	}
	return false
}

// PricingRule is a tenant-owned discount rule. Rules are never physically
// deleted; deactivation is the only retirement path. CurrentUses is mutated
// exclusively through the usage tracker.
type PricingRule struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	ProductIDs       []string        `json:"product_ids,omitempty"`
	Categories       []string        `json:"categories,omitempty"`
	AppliesToAll     bool            `json:"applies_to_all"`
	MinQuantity      *int            `json:"min_quantity,omitempty"`
	CustomerSegments []string        `json:"customer_segments,omitempty"`
	DiscountType     DiscountType    `json:"discount_type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	StartsAt         *time.Time      `json:"starts_at,omitempty"`
	EndsAt           *time.Time      `json:"ends_at,omitempty"`
	MaxUses          *int            `json:"max_uses,omitempty"`
	CurrentUses      int             `json:"current_uses"`
	IsActive         bool            `json:"is_active"`
	Priority         int             `json:"priority"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Validate checks the rule invariants. maxPercent is the tenant-configurable
// ceiling for percentage discounts; zero means the default of 100.
func (r PricingRule) Validate(maxPercent decimal.Decimal) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPricingRule)
	}
	if !r.AppliesToAll && len(r.ProductIDs) == 0 && len(r.Categories) == 0 && len(r.CustomerSegments) == 0 {
		return fmt.Errorf("%w: at least one applicability field must be set", ErrInvalidPricingRule)
	}
	switch r.DiscountType {
	case DiscountPercentage:
		ceiling := maxPercent
		if ceiling.IsZero() {
			ceiling = decimal.NewFromInt(100)
		}
		if r.DiscountValue.IsNegative() || r.DiscountValue.GreaterThan(ceiling) {
			return fmt.Errorf("%w: percentage discount must be between 0 and %s", ErrInvalidPricingRule, ceiling)
		}
	case DiscountFixedAmount:
		if r.DiscountValue.IsNegative() {
			return fmt.Errorf("%w: fixed amount discount must not be negative", ErrInvalidPricingRule)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidPricingRule, r.DiscountType)
	}
	if r.MinQuantity != nil && *r.MinQuantity < 1 {
		return fmt.Errorf("%w: minimum quantity must be at least 1", ErrInvalidPricingRule)
	}
	if r.MaxUses != nil && *r.MaxUses < 0 {
		return fmt.Errorf("%w: max uses must not be negative", ErrInvalidPricingRule)
	}
	if r.StartsAt != nil && r.EndsAt != nil && r.EndsAt.Before(*r.StartsAt) {
		return fmt.Errorf("%w: ends_at must not precede starts_at", ErrInvalidPricingRule)
	}
	return nil
}

// ActiveAt reports whether the rule's validity window contains the instant.
func (r PricingRule) ActiveAt(at time.Time) bool {
	if r.StartsAt != nil && at.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && at.After(*r.EndsAt) {
		return false
	}
	return true
}

// MatchesTarget reports whether the rule targets the product or category.
func (r PricingRule) MatchesTarget(productID, category string) bool {
	if r.AppliesToAll {
		return true
	}
	if productID != "" && containsString(r.ProductIDs, productID) {
		return true
	}
	return category != "" && containsString(r.Categories, category)
}

// MatchesSegment reports whether the rule accepts the customer segment. An
// empty segment list accepts everyone.
func (r PricingRule) MatchesSegment(segment string) bool {
	if len(r.CustomerSegments) == 0 {
		return true
	}
	return containsString(r.CustomerSegments, segment)
}

// MatchesQuantity reports whether the quantity satisfies the rule's minimum.
func (r PricingRule) MatchesQuantity(quantity int) bool {
	return r.MinQuantity == nil || quantity >= *r.MinQuantity
}

// HasUsageHeadroom reports whether the rule is still below its usage cap.
func (r PricingRule) HasUsageHeadroom() bool {
	return r.MaxUses == nil || r.CurrentUses < *r.MaxUses
}

// OverlapsApplicability reports whether two rules could target the same
// product or category.
func (r PricingRule) OverlapsApplicability(other PricingRule) bool {
	if r.AppliesToAll || other.AppliesToAll {
		return true
	}
	return intersects(r.ProductIDs, other.ProductIDs) || intersects(r.Categories, other.Categories)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

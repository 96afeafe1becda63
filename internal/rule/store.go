package rule

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Querier captures the persistence methods required by the Store. All
// implementations are tenant-scoped through the request context.
type Querier interface {
	InsertRule(ctx context.Context, r PricingRule) (PricingRule, error)
	UpdateRule(ctx context.Context, r PricingRule) (PricingRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (PricingRule, error)
	ListRules(ctx context.Context, filter ListFilter) ([]PricingRule, error)
	SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error
	ResetRuleUsage(ctx context.Context, id uuid.UUID) error
	CountRuleUsageEvents(ctx context.Context, id uuid.UUID) (int64, error)
}

// ListFilter narrows rule listings.
type ListFilter struct {
	ProductID  string
	Category   string
	ActiveOnly bool
}

// CreateParams are the caller-supplied fields for a new rule.
type CreateParams struct {
	Name             string          `json:"name" validate:"required"`
	ProductIDs       []string        `json:"product_ids"`
	Categories       []string        `json:"categories"`
	AppliesToAll     bool            `json:"applies_to_all"`
	MinQuantity      *int            `json:"min_quantity"`
	CustomerSegments []string        `json:"customer_segments"`
	DiscountType     DiscountType    `json:"discount_type" validate:"required"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	StartsAt         *time.Time      `json:"starts_at"`
	EndsAt           *time.Time      `json:"ends_at"`
	MaxUses          *int            `json:"max_uses"`
	Priority         int             `json:"priority"`
}

// UpdateParams carry partial updates; nil fields keep the stored value. The
// merged result is re-validated before persisting.
type UpdateParams struct {
	Name             *string          `json:"name"`
	ProductIDs       *[]string        `json:"product_ids"`
	Categories       *[]string        `json:"categories"`
	AppliesToAll     *bool            `json:"applies_to_all"`
	MinQuantity      *int             `json:"min_quantity"`
	CustomerSegments *[]string        `json:"customer_segments"`
	DiscountType     *DiscountType    `json:"discount_type"`
	DiscountValue    *decimal.Decimal `json:"discount_value"`
	StartsAt         *time.Time       `json:"starts_at"`
	EndsAt           *time.Time       `json:"ends_at"`
	MaxUses          *int             `json:"max_uses"`
	Priority         *int             `json:"priority"`
}

// BulkFailure records a single failed item within a bulk operation.
type BulkFailure struct {
	RuleID uuid.UUID `json:"rule_id"`
	Reason string    `json:"reason"`
}

// BulkResult summarises a partial-failure bulk operation. The call itself only
// fails when the operation could not run at all.
type BulkResult struct {
	Requested int           `json:"requested"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

// UsageStats reports a rule's usage counters. ActualUsageCount cross-checks
// the counter against independently recorded usage events; Drift surfaces the
// difference as a diagnostic, never a hard failure.
type UsageStats struct {
	CurrentUses      int    `json:"current_uses"`
	MaxUses          *int   `json:"max_uses,omitempty"`
	UsageRemaining   *int   `json:"usage_remaining,omitempty"`
	ActualUsageCount *int64 `json:"actual_usage_count,omitempty"`
	Drift            *int64 `json:"drift,omitempty"`
}

// Store validates and persists pricing rules.
type Store struct {
	Q Querier
	// MaxPercentDiscount caps percentage discounts; zero means 100.
	MaxPercentDiscount decimal.Decimal
	Now                func() time.Time
}

// Create validates and stores a new rule. New rules start active with zero
// usage.
func (s *Store) Create(ctx context.Context, params CreateParams) (PricingRule, error) {
	if s == nil || s.Q == nil {
		return PricingRule{}, errors.New("rule store not configured")
	}
	now := s.now()
	r := PricingRule{
		ID:               uuid.New(),
		Name:             strings.TrimSpace(params.Name),
		ProductIDs:       params.ProductIDs,
		Categories:       params.Categories,
		AppliesToAll:     params.AppliesToAll,
		MinQuantity:      params.MinQuantity,
		CustomerSegments: params.CustomerSegments,
		DiscountType:     params.DiscountType,
		DiscountValue:    params.DiscountValue,
		StartsAt:         params.StartsAt,
		EndsAt:           params.EndsAt,
		MaxUses:          params.MaxUses,
		IsActive:         true,
		Priority:         params.Priority,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.Validate(s.MaxPercentDiscount); err != nil {
		return PricingRule{}, err
	}
	return s.Q.InsertRule(ctx, r)
}

// Update merges partial fields into the stored rule and re-validates the
// result before persisting.
func (s *Store) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (PricingRule, error) {
	if s == nil || s.Q == nil {
		return PricingRule{}, errors.New("rule store not configured")
	}
	r, err := s.Q.GetRule(ctx, id)
	if err != nil {
		return PricingRule{}, err
	}
	if params.Name != nil {
		r.Name = strings.TrimSpace(*params.Name)
	}
	if params.ProductIDs != nil {
		r.ProductIDs = *params.ProductIDs
	}
	if params.Categories != nil {
		r.Categories = *params.Categories
	}
	if params.AppliesToAll != nil {
		r.AppliesToAll = *params.AppliesToAll
	}
	if params.MinQuantity != nil {
		r.MinQuantity = params.MinQuantity
	}
	if params.CustomerSegments != nil {
		r.CustomerSegments = *params.CustomerSegments
	}
	if params.DiscountType != nil {
		r.DiscountType = *params.DiscountType
	}
	if params.DiscountValue != nil {
		r.DiscountValue = *params.DiscountValue
	}
	if params.StartsAt != nil {
		r.StartsAt = params.StartsAt
	}
	if params.EndsAt != nil {
		r.EndsAt = params.EndsAt
	}
	if params.MaxUses != nil {
		r.MaxUses = params.MaxUses
	}
	if params.Priority != nil {
		r.Priority = *params.Priority
	}
	r.UpdatedAt = s.now()
	if err := r.Validate(s.MaxPercentDiscount); err != nil {
		return PricingRule{}, err
	}
	return s.Q.UpdateRule(ctx, r)
}

// Get returns a single rule.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (PricingRule, error) {
	if s == nil || s.Q == nil {
		return PricingRule{}, errors.New("rule store not configured")
	}
	return s.Q.GetRule(ctx, id)
}

// List returns the tenant's rules, optionally filtered.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]PricingRule, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("rule store not configured")
	}
	return s.Q.ListRules(ctx, filter)
}

// Activate re-enables a rule.
func (s *Store) Activate(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, true)
}

// Deactivate soft-retires a rule. Rules are never physically deleted.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, false)
}

func (s *Store) setActive(ctx context.Context, id uuid.UUID, active bool) error {
	if s == nil || s.Q == nil {
		return errors.New("rule store not configured")
	}
	return s.Q.SetRuleActive(ctx, id, active)
}

// BulkSetActive flips the active flag on many rules. Items are processed
// independently: a failure on one rule never aborts the rest.
func (s *Store) BulkSetActive(ctx context.Context, ids []uuid.UUID, active bool) (BulkResult, error) {
	if s == nil || s.Q == nil {
		return BulkResult{}, errors.New("rule store not configured")
	}
	result := BulkResult{Requested: len(ids)}
	for _, id := range ids {
		if err := s.Q.SetRuleActive(ctx, id, active); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BulkFailure{RuleID: id, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// ResetUsage zeroes a rule's usage counter.
func (s *Store) ResetUsage(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Q == nil {
		return errors.New("rule store not configured")
	}
	return s.Q.ResetRuleUsage(ctx, id)
}

// GetUsageStats reports usage counters plus the independent event-count
// cross-check. An unavailable event count leaves the diagnostic fields unset.
func (s *Store) GetUsageStats(ctx context.Context, id uuid.UUID) (UsageStats, error) {
	if s == nil || s.Q == nil {
		return UsageStats{}, errors.New("rule store not configured")
	}
	r, err := s.Q.GetRule(ctx, id)
	if err != nil {
		return UsageStats{}, err
	}
	stats := UsageStats{CurrentUses: r.CurrentUses, MaxUses: r.MaxUses}
	if r.MaxUses != nil {
		remaining := *r.MaxUses - r.CurrentUses
		if remaining < 0 {
			remaining = 0
		}
		stats.UsageRemaining = &remaining
	}
	if actual, err := s.Q.CountRuleUsageEvents(ctx, id); err == nil {
		drift := int64(r.CurrentUses) - actual
		stats.ActualUsageCount = &actual
		stats.Drift = &drift
	}
	return stats, nil
}

// Conflicts runs the static conflict analysis over the tenant's active rules.
func (s *Store) Conflicts(ctx context.Context) ([]Conflict, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("rule store not configured")
	}
	rules, err := s.Q.ListRules(ctx, ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	return DetectConflicts(rules), nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

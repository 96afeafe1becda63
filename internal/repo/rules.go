package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/rule"
)

const ruleColumns = `id, name, product_ids, categories, applies_to_all, min_quantity,
	customer_segments, discount_type, discount_value::text, starts_at, ends_at,
	max_uses, current_uses, is_active, priority, created_at, updated_at`

// RulesRepo persists pricing rules scoped to the tenant in context. It backs
// both the rule store and the usage tracker.
type RulesRepo struct {
	Pool *pgxpool.Pool
}

// InsertRule stores a new rule.
func (r RulesRepo) InsertRule(ctx context.Context, pr rule.PricingRule) (rule.PricingRule, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return rule.PricingRule{}, err
	}
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO pricing_rules (
			id, tenant_id, name, product_ids, categories, applies_to_all,
			min_quantity, customer_segments, discount_type, discount_value,
			starts_at, ends_at, max_uses, current_uses, is_active, priority,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING `+ruleColumns,
		pr.ID, tid, pr.Name, textArray(pr.ProductIDs), textArray(pr.Categories), pr.AppliesToAll,
		pr.MinQuantity, textArray(pr.CustomerSegments), string(pr.DiscountType), pr.DiscountValue.String(),
		pr.StartsAt, pr.EndsAt, pr.MaxUses, pr.CurrentUses, pr.IsActive, pr.Priority,
		pr.CreatedAt, pr.UpdatedAt,
	)
	return scanRule(row)
}

// UpdateRule persists a merged rule. The usage counter is intentionally not
// touched here: increments flow only through IncrementRuleUsage.
func (r RulesRepo) UpdateRule(ctx context.Context, pr rule.PricingRule) (rule.PricingRule, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return rule.PricingRule{}, err
	}
	row := r.Pool.QueryRow(ctx, `
		UPDATE pricing_rules SET
			name = $3, product_ids = $4, categories = $5, applies_to_all = $6,
			min_quantity = $7, customer_segments = $8, discount_type = $9,
			discount_value = $10::numeric, starts_at = $11, ends_at = $12,
			max_uses = $13, priority = $14, updated_at = $15
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+ruleColumns,
		pr.ID, tid, pr.Name, textArray(pr.ProductIDs), textArray(pr.Categories), pr.AppliesToAll,
		pr.MinQuantity, textArray(pr.CustomerSegments), string(pr.DiscountType), pr.DiscountValue.String(),
		pr.StartsAt, pr.EndsAt, pr.MaxUses, pr.Priority, pr.UpdatedAt,
	)
	return scanRule(row)
}

// GetRule returns a single rule.
func (r RulesRepo) GetRule(ctx context.Context, id uuid.UUID) (rule.PricingRule, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return rule.PricingRule{}, err
	}
	row := r.Pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1 AND tenant_id = $2`, id, tid)
	return scanRule(row)
}

// ListRules returns the tenant's rules ordered for deterministic matching:
// priority descending, created_at ascending.
func (r RulesRepo) ListRules(ctx context.Context, filter rule.ListFilter) ([]rule.PricingRule, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.Pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM pricing_rules
		WHERE tenant_id = $1
		  AND (NOT $2::boolean OR is_active)
		  AND (
			($3 = '' AND $4 = '')
			OR applies_to_all
			OR ($3 <> '' AND $3 = ANY(product_ids))
			OR ($4 <> '' AND $4 = ANY(categories))
		  )
		ORDER BY priority DESC, created_at ASC, id ASC`,
		tid, filter.ActiveOnly, filter.ProductID, filter.Category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []rule.PricingRule
	for rows.Next() {
		pr, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, pr)
	}
	return rules, rows.Err()
}

// SetRuleActive flips the active flag; rules are never deleted.
func (r RulesRepo) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := r.Pool.Exec(ctx,
		`UPDATE pricing_rules SET is_active = $3, updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		id, tid, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

// ResetRuleUsage zeroes the usage counter.
func (r RulesRepo) ResetRuleUsage(ctx context.Context, id uuid.UUID) error {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := r.Pool.Exec(ctx,
		`UPDATE pricing_rules SET current_uses = 0, updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		id, tid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

// IncrementRuleUsage performs the cap-guarded increment as a single
// conditional update, so two concurrent callers can never both pass the cap.
// It reports false when the rule is already at its cap.
func (r RulesRepo) IncrementRuleUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return false, err
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE pricing_rules
		SET current_uses = current_uses + 1, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		  AND (max_uses IS NULL OR current_uses < max_uses)`,
		id, tid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetRuleUsage returns the current counter and optional cap.
func (r RulesRepo) GetRuleUsage(ctx context.Context, id uuid.UUID) (int, *int, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return 0, nil, err
	}
	var current int
	var max *int
	err = r.Pool.QueryRow(ctx,
		`SELECT current_uses, max_uses FROM pricing_rules WHERE id = $1 AND tenant_id = $2`,
		id, tid).Scan(&current, &max)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, rule.ErrRuleNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return current, max, nil
}

// CountRuleUsageEvents counts independently recorded usage events for the
// drift diagnostic in usage stats.
func (r RulesRepo) CountRuleUsageEvents(ctx context.Context, id uuid.UUID) (int64, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	err = r.Pool.QueryRow(ctx,
		`SELECT count(*) FROM rule_usage_events WHERE rule_id = $1 AND tenant_id = $2`,
		id, tid).Scan(&count)
	return count, err
}

func scanRule(row pgx.Row) (rule.PricingRule, error) {
	var (
		pr            rule.PricingRule
		discountType  string
		discountValue string
	)
	err := row.Scan(
		&pr.ID, &pr.Name, &pr.ProductIDs, &pr.Categories, &pr.AppliesToAll, &pr.MinQuantity,
		&pr.CustomerSegments, &discountType, &discountValue, &pr.StartsAt, &pr.EndsAt,
		&pr.MaxUses, &pr.CurrentUses, &pr.IsActive, &pr.Priority, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rule.PricingRule{}, rule.ErrRuleNotFound
	}
	if err != nil {
		return rule.PricingRule{}, err
	}
	pr.DiscountType = rule.DiscountType(discountType)
	pr.DiscountValue, err = decimal.NewFromString(discountValue)
	if err != nil {
		return rule.PricingRule{}, err
	}
	pr.CreatedAt = pr.CreatedAt.UTC()
	pr.UpdatedAt = pr.UpdatedAt.UTC()
	normalizeRuleTimes(&pr)
	return pr, nil
}

func normalizeRuleTimes(pr *rule.PricingRule) {
	if pr.StartsAt != nil {
		t := pr.StartsAt.UTC()
		pr.StartsAt = &t
	}
	if pr.EndsAt != nil {
		t := pr.EndsAt.UTC()
		pr.EndsAt = &t
	}
}

// textArray keeps empty slices as empty text[] values instead of NULL.
func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageEventsRepo persists usage events from the worker. The tenant arrives in
// the task payload rather than the context because the worker runs outside any
// request scope.
type UsageEventsRepo struct {
	Pool *pgxpool.Pool
}

// InsertRuleUsageEvent appends one usage event.
func (r UsageEventsRepo) InsertRuleUsageEvent(ctx context.Context, tenantID string, ruleID uuid.UUID, occurredAt time.Time) error {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTenantInvalid, err)
	}
	_, err = r.Pool.Exec(ctx,
		`INSERT INTO rule_usage_events (tenant_id, rule_id, occurred_at) VALUES ($1, $2, $3)`,
		tid, ruleID, occurredAt)
	return err
}

package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/billing-engine/internal/tenant"
)

// TaskTypeUsageRecorded is the asynq task type for recording a usage event.
const TaskTypeUsageRecorded = "usage:recorded"

// UsageRecordedPayload is the task payload persisted by the worker.
type UsageRecordedPayload struct {
	TenantID   string    `json:"tenant_id"`
	RuleID     uuid.UUID `json:"rule_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Recorder enqueues usage events for asynchronous persistence. Recording is
// best-effort: a failed enqueue is logged and never blocks a price
// calculation, which is why usage stats treat the event count as a drift
// diagnostic rather than a source of truth.
type Recorder struct {
	Client *asynq.Client
	Logger zerolog.Logger
	Now    func() time.Time
}

// Record enqueues one usage event for the rule.
func (r *Recorder) Record(ctx context.Context, ruleID uuid.UUID) {
	if r == nil || r.Client == nil {
		return
	}
	tenantID, _ := tenant.From(ctx)
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	payload, err := json.Marshal(UsageRecordedPayload{TenantID: tenantID, RuleID: ruleID, OccurredAt: now})
	if err != nil {
		r.Logger.Error().Err(err).Str("rule_id", ruleID.String()).Msg("marshal usage event")
		return
	}
	task := asynq.NewTask(TaskTypeUsageRecorded, payload, asynq.MaxRetry(5))
	if _, err := r.Client.EnqueueContext(ctx, task); err != nil {
		r.Logger.Error().Err(err).Str("rule_id", ruleID.String()).Msg("enqueue usage event")
	}
}

// EventsQuerier persists usage events from the worker.
type EventsQuerier interface {
	InsertRuleUsageEvent(ctx context.Context, tenantID string, ruleID uuid.UUID, occurredAt time.Time) error
}

// NewUsageRecordedHandler returns the asynq handler that persists usage
// events.
func NewUsageRecordedHandler(q EventsQuerier, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload UsageRecordedPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Error().Err(err).Msg("decode usage event payload")
			return err
		}
		if err := q.InsertRuleUsageEvent(ctx, payload.TenantID, payload.RuleID, payload.OccurredAt); err != nil {
			logger.Error().Err(err).Str("rule_id", payload.RuleID.String()).Msg("persist usage event")
			return err
		}
		return nil
	}
}

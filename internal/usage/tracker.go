package usage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/billing-engine/internal/obs"
)

// Tracker increments per-rule usage counters. Increment must be linearizable
// per rule: under concurrent callers the cap can never be exceeded.
type Tracker interface {
	// Increment counts one use of the rule. It returns false when the rule
	// is already at its cap, in which case the caller must not apply the
	// rule's discount.
	Increment(ctx context.Context, ruleID uuid.UUID) (bool, error)
	// Remaining returns the remaining uses, or nil when the rule has no cap.
	Remaining(ctx context.Context, ruleID uuid.UUID) (*int, error)
}

// Querier captures the persistence methods required by StoreTracker. The
// increment must be a single conditional read-modify-write.
type Querier interface {
	IncrementRuleUsage(ctx context.Context, ruleID uuid.UUID) (bool, error)
	GetRuleUsage(ctx context.Context, ruleID uuid.UUID) (current int, max *int, err error)
}

// StoreTracker tracks usage through a durable store's atomic conditional
// update. Successful increments are additionally recorded as usage events for
// the drift diagnostic in usage stats.
type StoreTracker struct {
	Q        Querier
	Recorder *Recorder
}

// Increment counts one use, guarded by the rule's cap.
func (t *StoreTracker) Increment(ctx context.Context, ruleID uuid.UUID) (bool, error) {
	if t == nil || t.Q == nil {
		return false, errors.New("usage tracker not configured")
	}
	ok, err := t.Q.IncrementRuleUsage(ctx, ruleID)
	if err != nil {
		return false, err
	}
	if !ok {
		obs.CountUsageCapRejection()
		return false, nil
	}
	t.Recorder.Record(ctx, ruleID)
	return true, nil
}

// Remaining reports the rule's remaining uses, nil when uncapped.
func (t *StoreTracker) Remaining(ctx context.Context, ruleID uuid.UUID) (*int, error) {
	if t == nil || t.Q == nil {
		return nil, errors.New("usage tracker not configured")
	}
	current, max, err := t.Q.GetRuleUsage(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if max == nil {
		return nil, nil
	}
	remaining := *max - current
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

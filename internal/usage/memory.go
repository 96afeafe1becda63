package usage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/billing-engine/internal/obs"
)

// MemoryTracker is a mutex-guarded in-process tracker. It backs tests and
// single-node deployments that do not need durable counters.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
	caps   map[uuid.UUID]int
}

// NewMemoryTracker constructs an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		counts: make(map[uuid.UUID]int),
		caps:   make(map[uuid.UUID]int),
	}
}

// SetCap registers a usage cap for a rule. Rules without a cap never reject.
func (t *MemoryTracker) SetCap(ruleID uuid.UUID, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.caps[ruleID] = max
}

// Increment counts one use; the cap check and increment happen under a single
// lock acquisition so concurrent callers cannot both pass the cap.
func (t *MemoryTracker) Increment(_ context.Context, ruleID uuid.UUID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if max, capped := t.caps[ruleID]; capped && t.counts[ruleID] >= max {
		obs.CountUsageCapRejection()
		return false, nil
	}
	t.counts[ruleID]++
	return true, nil
}

// Remaining reports the remaining uses, nil when the rule has no cap.
func (t *MemoryTracker) Remaining(_ context.Context, ruleID uuid.UUID) (*int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	max, capped := t.caps[ruleID]
	if !capped {
		return nil, nil
	}
	remaining := max - t.counts[ruleID]
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

// Count returns the current counter for a rule.
func (t *MemoryTracker) Count(ruleID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[ruleID]
}

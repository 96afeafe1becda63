package usage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryTrackerUncapped(t *testing.T) {
	tracker := NewMemoryTracker()
	id := uuid.New()
	for i := 0; i < 100; i++ {
		ok, err := tracker.Increment(context.Background(), id)
		if err != nil || !ok {
			t.Fatalf("increment %d: ok=%v err=%v", i, ok, err)
		}
	}
	remaining, err := tracker.Remaining(context.Background(), id)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != nil {
		t.Fatalf("uncapped rule reported remaining = %v", *remaining)
	}
}

func TestMemoryTrackerCapNeverExceededUnderConcurrency(t *testing.T) {
	tracker := NewMemoryTracker()
	id := uuid.New()
	tracker.SetCap(id, 1)

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.Increment(context.Background(), id)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1 for max_uses=1", successes)
	}
	if got := tracker.Count(id); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestMemoryTrackerRemaining(t *testing.T) {
	tracker := NewMemoryTracker()
	id := uuid.New()
	tracker.SetCap(id, 3)

	for i := 0; i < 2; i++ {
		if ok, _ := tracker.Increment(context.Background(), id); !ok {
			t.Fatalf("increment %d rejected below cap", i)
		}
	}
	remaining, err := tracker.Remaining(context.Background(), id)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining == nil || *remaining != 1 {
		t.Fatalf("remaining = %v, want 1", remaining)
	}
}

type stubUsageQuerier struct {
	allow   bool
	err     error
	current int
	max     *int
	calls   int
}

func (s *stubUsageQuerier) IncrementRuleUsage(context.Context, uuid.UUID) (bool, error) {
	s.calls++
	return s.allow, s.err
}

func (s *stubUsageQuerier) GetRuleUsage(context.Context, uuid.UUID) (int, *int, error) {
	return s.current, s.max, s.err
}

func TestStoreTrackerIncrement(t *testing.T) {
	q := &stubUsageQuerier{allow: true}
	tracker := &StoreTracker{Q: q}

	ok, err := tracker.Increment(context.Background(), uuid.New())
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if q.calls != 1 {
		t.Fatalf("store called %d times", q.calls)
	}
}

func TestStoreTrackerRejection(t *testing.T) {
	q := &stubUsageQuerier{allow: false}
	tracker := &StoreTracker{Q: q}

	ok, err := tracker.Increment(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("cap rejection reported as success")
	}
}

func TestStoreTrackerError(t *testing.T) {
	boom := errors.New("db down")
	tracker := &StoreTracker{Q: &stubUsageQuerier{err: boom}}
	if _, err := tracker.Increment(context.Background(), uuid.New()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want db error", err)
	}
}

func TestStoreTrackerRemaining(t *testing.T) {
	max := 5
	tracker := &StoreTracker{Q: &stubUsageQuerier{current: 7, max: &max}}
	remaining, err := tracker.Remaining(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining == nil || *remaining != 0 {
		t.Fatalf("remaining = %v, want clamped 0", remaining)
	}
}

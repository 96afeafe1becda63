package tax

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/tenant"
)

type stubRateQuerier struct {
	rates     []Rate
	listCalls int
	insertErr error
}

func (s *stubRateQuerier) InsertTaxRate(_ context.Context, rate Rate) (Rate, error) {
	if s.insertErr != nil {
		return Rate{}, s.insertErr
	}
	rate.ID = uuid.New()
	rate.CreatedAt = time.Now().UTC()
	s.rates = append(s.rates, rate)
	return rate, nil
}

func (s *stubRateQuerier) ListTaxRatesByJurisdiction(_ context.Context, jurisdiction string) ([]Rate, error) {
	s.listCalls++
	out := []Rate{}
	for _, r := range s.rates {
		if r.Jurisdiction == jurisdiction || r.Jurisdiction == JurisdictionWildcard {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRateQuerier) ListTaxRates(context.Context) ([]Rate, error) {
	return s.rates, nil
}

func newCacheTestEnv(t *testing.T) (context.Context, *stubRateQuerier, *Registry) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := &stubRateQuerier{}
	registry := &Registry{Q: q, Cache: NewCache(client, time.Minute)}
	ctx := tenant.With(context.Background(), uuid.NewString())
	return ctx, q, registry
}

func TestRatesForCachesLookups(t *testing.T) {
	ctx, q, registry := newCacheTestEnv(t)
	if _, err := registry.AddRate(ctx, AddRateParams{Name: "sales", Rate: decimal.NewFromInt(8), Jurisdiction: "US-CA"}); err != nil {
		t.Fatalf("add rate: %v", err)
	}

	first, err := registry.RatesFor(ctx, "US-CA")
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 rate, got %d", len(first))
	}
	second, err := registry.RatesFor(ctx, "US-CA")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected 1 cached rate, got %d", len(second))
	}
	if q.listCalls != 1 {
		t.Fatalf("store queried %d times, want 1 (second lookup served from cache)", q.listCalls)
	}
}

func TestAddRateInvalidatesJurisdiction(t *testing.T) {
	ctx, q, registry := newCacheTestEnv(t)
	if _, err := registry.AddRate(ctx, AddRateParams{Name: "sales", Rate: decimal.NewFromInt(8), Jurisdiction: "US-CA"}); err != nil {
		t.Fatalf("add rate: %v", err)
	}
	if _, err := registry.RatesFor(ctx, "US-CA"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if _, err := registry.AddRate(ctx, AddRateParams{Name: "district", Rate: decimal.NewFromInt(2), Jurisdiction: "US-CA", IsCompound: true}); err != nil {
		t.Fatalf("add second rate: %v", err)
	}

	rates, err := registry.RatesFor(ctx, "US-CA")
	if err != nil {
		t.Fatalf("lookup after write: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates after invalidation, got %d", len(rates))
	}
	if q.listCalls != 2 {
		t.Fatalf("store queried %d times, want 2", q.listCalls)
	}
}

func TestAddWildcardRateOrphansAllJurisdictions(t *testing.T) {
	ctx, q, registry := newCacheTestEnv(t)
	if _, err := registry.AddRate(ctx, AddRateParams{Name: "ca", Rate: decimal.NewFromInt(8), Jurisdiction: "US-CA"}); err != nil {
		t.Fatalf("add rate: %v", err)
	}
	if _, err := registry.AddRate(ctx, AddRateParams{Name: "ny", Rate: decimal.NewFromInt(4), Jurisdiction: "US-NY"}); err != nil {
		t.Fatalf("add rate: %v", err)
	}
	if _, err := registry.RatesFor(ctx, "US-CA"); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if _, err := registry.RatesFor(ctx, "US-NY"); err != nil {
		t.Fatalf("warm: %v", err)
	}
	callsBefore := q.listCalls

	if _, err := registry.AddRate(ctx, AddRateParams{Name: "federal", Rate: decimal.NewFromInt(1), Jurisdiction: JurisdictionWildcard}); err != nil {
		t.Fatalf("add wildcard: %v", err)
	}

	ca, err := registry.RatesFor(ctx, "US-CA")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	ny, err := registry.RatesFor(ctx, "US-NY")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ca) != 2 || len(ny) != 2 {
		t.Fatalf("wildcard rate missing: ca=%d ny=%d", len(ca), len(ny))
	}
	if q.listCalls != callsBefore+2 {
		t.Fatalf("expected both jurisdictions to refetch, got %d extra calls", q.listCalls-callsBefore)
	}
}

func TestRatesAreTenantScoped(t *testing.T) {
	ctx, _, registry := newCacheTestEnv(t)
	if _, err := registry.AddRate(ctx, AddRateParams{Name: "sales", Rate: decimal.NewFromInt(8), Jurisdiction: "US-CA"}); err != nil {
		t.Fatalf("add rate: %v", err)
	}
	if _, err := registry.RatesFor(ctx, "US-CA"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	// A different tenant must not see the first tenant's cache entries.
	otherCtx := tenant.With(context.Background(), uuid.NewString())
	cached, ok := registry.Cache.Lookup(otherCtx, "US-CA")
	if ok {
		t.Fatalf("cache leaked across tenants: %#v", cached)
	}
}

func TestAddRateRejectsInvalid(t *testing.T) {
	ctx, _, registry := newCacheTestEnv(t)
	cases := []AddRateParams{
		{Name: "", Rate: decimal.NewFromInt(8), Jurisdiction: "US-CA"},
		{Name: "no jurisdiction", Rate: decimal.NewFromInt(8)},
		{Name: "negative", Rate: decimal.NewFromInt(-1), Jurisdiction: "US-CA"},
		{Name: "too high", Rate: decimal.NewFromInt(101), Jurisdiction: "US-CA"},
	}
	for _, params := range cases {
		if _, err := registry.AddRate(ctx, params); !errors.Is(err, ErrInvalidTaxRate) {
			t.Fatalf("params %+v: err = %v, want ErrInvalidTaxRate", params, err)
		}
	}
}

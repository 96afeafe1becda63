package tax

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/billing-engine/internal/cache"
)

// Cache stores per-jurisdiction rate lists in Redis under versioned tenant
// keys. Entries carry a TTL so stale reads after a write stay bounded even if
// an invalidation is missed.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a rate cache. A nil client disables caching entirely.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Lookup returns the cached rate list for a jurisdiction. It reports whether
// the key existed; lookup errors are treated as misses.
func (c *Cache) Lookup(ctx context.Context, jurisdiction string) ([]Rate, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	version, err := c.version(ctx)
	if err != nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, cache.KeyTaxRates(ctx, version, jurisdiction)).Bytes()
	if err != nil {
		return nil, false
	}
	var rates []Rate
	if err := json.Unmarshal(data, &rates); err != nil {
		return nil, false
	}
	return rates, true
}

// Store caches the rate list for a jurisdiction with the configured TTL.
func (c *Cache) Store(ctx context.Context, jurisdiction string, rates []Rate) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return
	}
	version, err := c.version(ctx)
	if err != nil {
		return
	}
	data, err := json.Marshal(rates)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cache.KeyTaxRates(ctx, version, jurisdiction), data, c.ttl).Err()
}

// Invalidate drops cached entries affected by a write to the given
// jurisdiction. A wildcard write bumps the tenant version counter, which
// orphans every cached jurisdiction because wildcard rates participate in all
// of them. Failures are returned so the caller can surface them: a rate
// addition must never be lost silently.
func (c *Cache) Invalidate(ctx context.Context, jurisdiction string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if jurisdiction == JurisdictionWildcard {
		return c.client.Incr(ctx, cache.KeyTaxRatesVersion(ctx)).Err()
	}
	version, err := c.version(ctx)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, cache.KeyTaxRates(ctx, version, jurisdiction)).Err()
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, cache.KeyTaxRatesVersion(ctx)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

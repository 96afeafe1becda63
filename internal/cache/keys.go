package cache

import (
	"context"
	"strconv"

	"github.com/noah-isme/billing-engine/internal/tenant"
)

// KeyTaxRatesVersion returns the per-tenant version counter key for tax-rate
// cache entries. Bumping the version orphans every cached jurisdiction at once.
func KeyTaxRatesVersion(ctx context.Context) string {
	return prefixed(ctx, "taxrates:ver")
}

// KeyTaxRates returns the per-tenant cache key for a jurisdiction's rate list
// under the given version.
func KeyTaxRates(ctx context.Context, version int64, jurisdiction string) string {
	return prefixed(ctx, "taxrates:v"+strconv.FormatInt(version, 10)+":"+jurisdiction)
}

func prefixed(ctx context.Context, base string) string {
	id, _ := tenant.From(ctx)
	return tenant.PrefixKey(id, base)
}

package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/billing-engine/internal/tenant"
)

var (
	// ErrTenantMissing indicates the tenant identifier was not found in context.
	ErrTenantMissing = errors.New("tenant missing")
	// ErrTenantInvalid indicates the tenant identifier could not be parsed.
	ErrTenantInvalid = errors.New("tenant invalid")
)

// tenantUUIDFromContext resolves and parses the tenant identifier every query
// is scoped by. Cross-tenant reads are impossible by construction: no query
// runs without it.
func tenantUUIDFromContext(ctx context.Context) (uuid.UUID, error) {
	tenantID, ok := tenant.From(ctx)
	if !ok {
		return uuid.Nil, ErrTenantMissing
	}
	parsed, err := uuid.Parse(tenantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrTenantInvalid, err)
	}
	return parsed, nil
}

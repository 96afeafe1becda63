package tax

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JurisdictionWildcard matches every jurisdiction when used on a rate.
const JurisdictionWildcard = "*"

var (
	// ErrInvalidTaxRate is returned when a rate fails validation at creation time.
	ErrInvalidTaxRate = errors.New("invalid tax rate")
	// ErrRateNotFound indicates the requested rate does not exist for the tenant.
	ErrRateNotFound = errors.New("tax rate not found")
)

// Rate describes a named tax rate scoped to a jurisdiction.
//
// Compound rates are evaluated after all non-compound rates within the same
// calculation; order among compound rates is insertion order.
type Rate struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Rate            decimal.Decimal `json:"rate"`
	Jurisdiction    string          `json:"jurisdiction"`
	TaxType         string          `json:"tax_type"`
	IsCompound      bool            `json:"is_compound"`
	IsInclusive     bool            `json:"is_inclusive"`
	ThresholdAmount *int64          `json:"threshold_amount,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate checks the rate invariants before it is persisted.
func (r Rate) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTaxRate)
	}
	if strings.TrimSpace(r.Jurisdiction) == "" {
		return fmt.Errorf("%w: jurisdiction is required", ErrInvalidTaxRate)
	}
	if r.Rate.IsNegative() || r.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: rate must be between 0 and 100", ErrInvalidTaxRate)
	}
	if r.ThresholdAmount != nil && *r.ThresholdAmount < 0 {
		return fmt.Errorf("%w: threshold amount must not be negative", ErrInvalidTaxRate)
	}
	return nil
}

// appliesAt reports whether the rate participates for the given original
// amount, honouring the optional threshold.
func (r Rate) appliesAt(amount int64) bool {
	return r.ThresholdAmount == nil || amount >= *r.ThresholdAmount
}

package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoConversionRate indicates no factor is configured for the currency pair.
var ErrNoConversionRate = errors.New("no conversion rate for currency pair")

// Converter returns the multiplicative factor converting amounts from one
// currency into another. Rate sourcing is the caller's concern; the engine
// only consumes factors.
type Converter interface {
	Factor(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticConverter serves factors from a fixed table, keyed "FROM:TO". It
// answers identity conversions with factor 1 and falls back to the inverse of
// a configured reverse pair.
type StaticConverter struct {
	factors map[string]decimal.Decimal
}

// NewStaticConverter builds a converter from explicit factors.
func NewStaticConverter(factors map[string]decimal.Decimal) *StaticConverter {
	normalized := make(map[string]decimal.Decimal, len(factors))
	for pair, factor := range factors {
		normalized[strings.ToUpper(strings.TrimSpace(pair))] = factor
	}
	return &StaticConverter{factors: normalized}
}

// ParseFactors parses a configuration string of the form
// "USD:EUR=0.92,USD:GBP=0.79" into a factor table.
func ParseFactors(raw string) (map[string]decimal.Decimal, error) {
	factors := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pair, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed conversion entry %q", entry)
		}
		factor, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("malformed conversion factor in %q: %w", entry, err)
		}
		if factor.Sign() <= 0 {
			return nil, fmt.Errorf("conversion factor must be positive in %q", entry)
		}
		factors[strings.ToUpper(strings.TrimSpace(pair))] = factor
	}
	return factors, nil
}

// Factor returns the conversion factor for the pair.
func (c *StaticConverter) Factor(_ context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if c != nil {
		if factor, ok := c.factors[from+":"+to]; ok {
			return factor, nil
		}
		if reverse, ok := c.factors[to+":"+from]; ok && reverse.Sign() > 0 {
			return decimal.NewFromInt(1).Div(reverse), nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrNoConversionRate, from, to)
}

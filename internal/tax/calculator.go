package tax

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/money"
)

// ErrCombinedRateOutOfRange is returned when an inclusive back-calculation
// would divide by a non-positive factor.
var ErrCombinedRateOutOfRange = errors.New("combined tax rate out of range")

// BreakdownEntry records one rate's contribution to a calculation.
type BreakdownEntry struct {
	Name         string          `json:"name"`
	Rate         decimal.Decimal `json:"rate"`
	Amount       int64           `json:"amount"`
	Jurisdiction string          `json:"jurisdiction"`
	IsCompound   bool            `json:"is_compound"`
}

// Result is the outcome of a tax calculation. All amounts are minor units and
// the breakdown entries always sum exactly to TaxAmount.
type Result struct {
	Subtotal    int64            `json:"subtotal"`
	TaxAmount   int64            `json:"tax_amount"`
	TotalAmount int64            `json:"total_amount"`
	Breakdown   []BreakdownEntry `json:"tax_breakdown"`
}

// Calculate computes tax over an amount in minor units. In exclusive mode the
// amount is the pre-tax subtotal; in inclusive mode it already contains tax and
// the subtotal is extracted by back-calculation.
func Calculate(amount int64, rates []Rate, inclusive bool) (Result, error) {
	applicable := filterByThreshold(amount, rates)
	if len(applicable) == 0 {
		return Result{Subtotal: amount, TotalAmount: amount, Breakdown: []BreakdownEntry{}}, nil
	}
	if inclusive {
		return calculateInclusive(amount, applicable)
	}
	return calculateExclusive(amount, applicable), nil
}

// calculateExclusive processes rates in two passes: non-compound rates first in
// their given order, then compound rates. A non-compound rate is applied to the
// original subtotal; a compound rate to the subtotal plus tax computed so far.
func calculateExclusive(amount int64, rates []Rate) Result {
	ordered := make([]Rate, 0, len(rates))
	for _, r := range rates {
		if !r.IsCompound {
			ordered = append(ordered, r)
		}
	}
	for _, r := range rates {
		if r.IsCompound {
			ordered = append(ordered, r)
		}
	}

	var taxTotal int64
	breakdown := make([]BreakdownEntry, 0, len(ordered))
	for _, r := range ordered {
		base := amount
		if r.IsCompound {
			base = amount + taxTotal
		}
		contribution := money.Percent(base, r.Rate)
		taxTotal += contribution
		breakdown = append(breakdown, BreakdownEntry{
			Name:         r.Name,
			Rate:         r.Rate,
			Amount:       contribution,
			Jurisdiction: r.Jurisdiction,
			IsCompound:   r.IsCompound,
		})
	}
	return Result{
		Subtotal:    amount,
		TaxAmount:   taxTotal,
		TotalAmount: amount + taxTotal,
		Breakdown:   breakdown,
	}
}

// calculateInclusive extracts the pre-tax subtotal from a tax-inclusive amount
// using the combined rate, then attributes tax per rate. The last rate absorbs
// the rounding remainder so that the breakdown sums exactly to the tax amount.
func calculateInclusive(amount int64, rates []Rate) (Result, error) {
	combined := CombinedRate(rates)
	divisor := decimal.NewFromInt(1).Add(money.AsFraction(combined))
	if divisor.Sign() <= 0 {
		return Result{}, ErrCombinedRateOutOfRange
	}
	subtotal := money.RoundHalfUp(money.Decimal(amount).Div(divisor))
	taxAmount := amount - subtotal

	var attributed int64
	breakdown := make([]BreakdownEntry, 0, len(rates))
	for i, r := range rates {
		var contribution int64
		if i == len(rates)-1 {
			contribution = taxAmount - attributed
		} else {
			contribution = money.Percent(subtotal, r.Rate)
		}
		attributed += contribution
		breakdown = append(breakdown, BreakdownEntry{
			Name:         r.Name,
			Rate:         r.Rate,
			Amount:       contribution,
			Jurisdiction: r.Jurisdiction,
			IsCompound:   r.IsCompound,
		})
	}
	return Result{
		Subtotal:    subtotal,
		TaxAmount:   taxAmount,
		TotalAmount: amount,
		Breakdown:   breakdown,
	}, nil
}

// CombinedRate folds rates in their given order into a single percentage:
// non-compound rates add directly, compound rates multiply the running value
// by (1 + rate/100).
func CombinedRate(rates []Rate) decimal.Decimal {
	combined := decimal.Zero
	one := decimal.NewFromInt(1)
	for _, r := range rates {
		if r.IsCompound {
			combined = combined.Mul(one.Add(money.AsFraction(r.Rate)))
		} else {
			combined = combined.Add(r.Rate)
		}
	}
	return combined
}

func filterByThreshold(amount int64, rates []Rate) []Rate {
	out := make([]Rate, 0, len(rates))
	for _, r := range rates {
		if r.appliesAt(amount) {
			out = append(out, r)
		}
	}
	return out
}

// LineItem is a single billable line participating in a tax calculation.
type LineItem struct {
	Reference string `json:"reference,omitempty"`
	Amount    int64  `json:"amount"`
	TaxExempt bool   `json:"tax_exempt,omitempty"`
}

// TaxedLineItem annotates a line item with its individual tax result.
type TaxedLineItem struct {
	LineItem
	Tax Result `json:"tax"`
}

// LineItemsResult aggregates per-item calculations.
type LineItemsResult struct {
	Items       []TaxedLineItem `json:"items"`
	Subtotal    int64           `json:"subtotal"`
	TaxAmount   int64           `json:"tax_amount"`
	TotalAmount int64           `json:"total_amount"`
}

// CalculateLineItems applies Calculate independently to each item. Tax-exempt
// items bypass calculation entirely and contribute zero tax.
func CalculateLineItems(items []LineItem, rates []Rate, inclusive bool) (LineItemsResult, error) {
	result := LineItemsResult{Items: make([]TaxedLineItem, 0, len(items))}
	for _, item := range items {
		var itemResult Result
		if item.TaxExempt {
			itemResult = Result{Subtotal: item.Amount, TotalAmount: item.Amount, Breakdown: []BreakdownEntry{}}
		} else {
			var err error
			itemResult, err = Calculate(item.Amount, rates, inclusive)
			if err != nil {
				return LineItemsResult{}, err
			}
		}
		result.Items = append(result.Items, TaxedLineItem{LineItem: item, Tax: itemResult})
		result.Subtotal += itemResult.Subtotal
		result.TaxAmount += itemResult.TaxAmount
		result.TotalAmount += itemResult.TotalAmount
	}
	return result, nil
}

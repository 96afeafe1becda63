package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/billing-engine/internal/catalog"
	"github.com/noah-isme/billing-engine/internal/currency"
	"github.com/noah-isme/billing-engine/internal/money"
	"github.com/noah-isme/billing-engine/internal/obs"
	"github.com/noah-isme/billing-engine/internal/rule"
	"github.com/noah-isme/billing-engine/internal/usage"
)

// ErrInvalidQuantity is returned for non-positive quantities.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// RuleSource supplies candidate rules for matching.
type RuleSource interface {
	List(ctx context.Context, filter rule.ListFilter) ([]rule.PricingRule, error)
}

// Service wires the matcher and calculator to their collaborators: the rule
// store, the product catalog, the usage tracker, and an optional currency
// converter.
type Service struct {
	Rules     RuleSource
	Products  catalog.Source
	Usage     usage.Tracker
	Converter currency.Converter
	Now       func() time.Time
}

// CalculateParams describe one price calculation request.
type CalculateParams struct {
	ProductID       string `json:"product_id" validate:"required"`
	Quantity        int    `json:"quantity" validate:"min=1"`
	CustomerSegment string `json:"customer_segment"`
	// Currency optionally requests normalization into a reporting currency.
	Currency string `json:"currency"`
}

// Preview evaluates a calculation without committing usage counters.
func (s *Service) Preview(ctx context.Context, params CalculateParams) (Result, error) {
	return s.calculate(ctx, params, false)
}

// Calculate evaluates a calculation and commits usage for every applied rule.
func (s *Service) Calculate(ctx context.Context, params CalculateParams) (Result, error) {
	return s.calculate(ctx, params, true)
}

func (s *Service) calculate(ctx context.Context, params CalculateParams, commit bool) (Result, error) {
	if s == nil || s.Rules == nil || s.Products == nil {
		return Result{}, errors.New("pricing service not configured")
	}
	if params.Quantity < 1 {
		return Result{}, ErrInvalidQuantity
	}

	product, err := s.Products.Product(ctx, params.ProductID)
	if err != nil {
		obs.CountPriceCalculation("error")
		return Result{}, err
	}

	candidates, err := s.Rules.List(ctx, rule.ListFilter{
		ProductID:  product.ID,
		Category:   product.Category,
		ActiveOnly: true,
	})
	if err != nil {
		obs.CountPriceCalculation("error")
		return Result{}, err
	}

	matched := Match(candidates, MatchContext{
		ProductID:       product.ID,
		Category:        product.Category,
		Quantity:        params.Quantity,
		CustomerSegment: params.CustomerSegment,
		AsOf:            s.now(),
	})

	var reserve Reserver
	if commit && s.Usage != nil {
		reserve = func(r rule.PricingRule) (bool, error) {
			return s.Usage.Increment(ctx, r.ID)
		}
	}

	result, err := Apply(product.BasePrice, params.Quantity, matched, reserve)
	if err != nil {
		obs.CountPriceCalculation("error")
		return Result{}, err
	}
	result.Currency = product.Currency

	if err := s.normalize(ctx, &result, product.Currency, params.Currency); err != nil {
		obs.CountPriceCalculation("error")
		return Result{}, err
	}

	obs.CountPriceCalculation("ok")
	return result, nil
}

// normalize converts the final price and subtotal into the requested
// reporting currency. The displayed currency stays the product's native one.
func (s *Service) normalize(ctx context.Context, result *Result, native, requested string) error {
	requested = strings.ToUpper(strings.TrimSpace(requested))
	native = strings.ToUpper(strings.TrimSpace(native))
	if requested == "" || requested == native {
		return nil
	}
	if s.Converter == nil {
		return fmt.Errorf("%w: %s to %s", currency.ErrNoConversionRate, native, requested)
	}
	factor, err := s.Converter.Factor(ctx, native, requested)
	if err != nil {
		return err
	}
	normalizedAmount := money.RoundHalfUp(money.Decimal(result.FinalPrice).Mul(factor))
	normalizedSubtotal := money.RoundHalfUp(money.Decimal(result.Subtotal).Mul(factor))
	result.NormalizedCurrency = requested
	result.NormalizedAmount = &normalizedAmount
	result.NormalizedSubtotal = &normalizedSubtotal
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

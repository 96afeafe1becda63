// Seeder loads a demo tenant with products, pricing rules, and tax rates so
// the engine can be exercised locally without a billing platform upstream.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/billing-engine/internal/catalog"
	"github.com/noah-isme/billing-engine/internal/config"
	"github.com/noah-isme/billing-engine/internal/repo"
	"github.com/noah-isme/billing-engine/internal/rule"
	"github.com/noah-isme/billing-engine/internal/tax"
	"github.com/noah-isme/billing-engine/internal/tenant"
)

func main() {
	tenantID := flag.String("tenant", "00000000-0000-0000-0000-000000000001", "tenant identifier to seed")
	flag.Parse()

	if _, err := uuid.Parse(*tenantID); err != nil {
		log.Fatalf("invalid tenant id: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(connectCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	ctx := tenant.With(context.Background(), *tenantID)

	seedProducts(ctx, repo.ProductsRepo{Pool: pool})
	seedRules(ctx, repo.RulesRepo{Pool: pool}, cfg.MaxPercentDiscount)
	seedTaxRates(ctx, repo.RatesRepo{Pool: pool})

	log.Println("seeding completed")
}

func seedProducts(ctx context.Context, products repo.ProductsRepo) {
	demo := []catalog.Product{
		{ID: "sub-basic", Name: "Basic Subscription", BasePrice: 990, Category: "subscriptions", Currency: "USD"},
		{ID: "sub-pro", Name: "Pro Subscription", BasePrice: 2990, Category: "subscriptions", Currency: "USD"},
		{ID: "sub-enterprise", Name: "Enterprise Subscription", BasePrice: 9990, Category: "subscriptions", Currency: "USD"},
		{ID: "addon-storage", Name: "Extra Storage", BasePrice: 500, Category: "addons", Currency: "USD"},
		{ID: "addon-seats", Name: "Extra Seats", BasePrice: 1200, Category: "addons", Currency: "USD"},
		{ID: "support-premium", Name: "Premium Support", BasePrice: 4900, Category: "support", Currency: "EUR"},
	}
	log.Println("seeding products...")
	for _, p := range demo {
		if err := products.UpsertProduct(ctx, p); err != nil {
			log.Printf("seed product %s: %v", p.ID, err)
		}
	}
}

func seedRules(ctx context.Context, rules repo.RulesRepo, maxPercent float64) {
	store := &rule.Store{Q: rules, MaxPercentDiscount: decimal.NewFromFloat(maxPercent)}
	maxUses := 100
	volumeMin := 5
	demo := []rule.CreateParams{
		{
			Name:          "Spring promo",
			DiscountType:  rule.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			AppliesToAll:  true,
			Priority:      10,
		},
		{
			Name:          "Subscriptions volume discount",
			DiscountType:  rule.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(15),
			Categories:    []string{"subscriptions"},
			MinQuantity:   &volumeMin,
			Priority:      20,
		},
		{
			Name:          "Storage addon launch",
			DiscountType:  rule.DiscountFixedAmount,
			DiscountValue: decimal.NewFromInt(100),
			ProductIDs:    []string{"addon-storage"},
			Priority:      5,
			MaxUses:       &maxUses,
		},
	}
	log.Println("seeding pricing rules...")
	for _, params := range demo {
		if _, err := store.Create(ctx, params); err != nil {
			log.Printf("seed rule %s: %v", params.Name, err)
		}
	}
}

func seedTaxRates(ctx context.Context, rates repo.RatesRepo) {
	registry := &tax.Registry{Q: rates}
	demo := []tax.AddRateParams{
		{Name: "CA state sales tax", Rate: decimal.NewFromFloat(7.25), Jurisdiction: "US-CA", TaxType: "sales"},
		{Name: "CA district tax", Rate: decimal.NewFromFloat(1.0), Jurisdiction: "US-CA", TaxType: "sales", IsCompound: true},
		{Name: "VAT standard", Rate: decimal.NewFromInt(20), Jurisdiction: "GB", TaxType: "vat", IsInclusive: true},
		{Name: "Federal levy", Rate: decimal.NewFromFloat(0.5), Jurisdiction: tax.JurisdictionWildcard, TaxType: "levy"},
	}
	log.Println("seeding tax rates...")
	for _, params := range demo {
		if _, err := registry.AddRate(ctx, params); err != nil {
			log.Printf("seed tax rate %s: %v", params.Name, err)
		}
	}
}

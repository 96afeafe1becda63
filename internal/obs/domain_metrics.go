package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceCalculationsTotal counts price calculation outcomes.
	PriceCalculationsTotal *prometheus.CounterVec
	// TaxCalculationsTotal counts tax calculation outcomes by mode.
	TaxCalculationsTotal *prometheus.CounterVec
	// TaxRateCacheTotal counts rate-cache lookups by result.
	TaxRateCacheTotal *prometheus.CounterVec
	// UsageCapRejections counts rule applications refused at the usage cap.
	UsageCapRejections prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_calculations_total",
			Help:      "Count of price calculation outcomes.",
		}, []string{"result"})
		TaxCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_calculations_total",
			Help:      "Count of tax calculation outcomes by pricing mode.",
		}, []string{"mode", "result"})
		TaxRateCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_rate_cache_total",
			Help:      "Count of tax rate cache lookups by result.",
		}, []string{"result"})
		UsageCapRejections = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_cap_rejections_total",
			Help:      "Number of rule applications refused at the usage cap.",
		})

		mustRegisterCollector(reg, PriceCalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceCalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, TaxCalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TaxCalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, TaxRateCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TaxRateCacheTotal = v
			}
		})
		mustRegisterCollector(reg, UsageCapRejections, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				UsageCapRejections = v
			}
		})
	})
}

// CountPriceCalculation increments the price calculation counter when domain
// metrics are registered.
func CountPriceCalculation(result string) {
	if PriceCalculationsTotal != nil {
		PriceCalculationsTotal.WithLabelValues(result).Inc()
	}
}

// CountTaxCalculation increments the tax calculation counter.
func CountTaxCalculation(mode, result string) {
	if TaxCalculationsTotal != nil {
		TaxCalculationsTotal.WithLabelValues(mode, result).Inc()
	}
}

// CountRateCache increments the rate-cache lookup counter.
func CountRateCache(result string) {
	if TaxRateCacheTotal != nil {
		TaxRateCacheTotal.WithLabelValues(result).Inc()
	}
}

// CountUsageCapRejection increments the usage-cap rejection counter.
func CountUsageCapRejection() {
	if UsageCapRejections != nil {
		UsageCapRejections.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

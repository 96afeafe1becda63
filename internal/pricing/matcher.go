package pricing

import (
	"sort"
	"time"

	"github.com/noah-isme/billing-engine/internal/rule"
)

// MatchContext describes the calculation a rule must apply to.
type MatchContext struct {
	ProductID       string
	Category        string
	Quantity        int
	CustomerSegment string
	AsOf            time.Time
}

// Match selects the rules applicable to the context and orders them for
// deterministic application: priority descending, ties broken by created_at
// ascending, then by id so repeated calls always agree.
func Match(rules []rule.PricingRule, mc MatchContext) []rule.PricingRule {
	matched := make([]rule.PricingRule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		if !r.ActiveAt(mc.AsOf) {
			continue
		}
		if !r.MatchesQuantity(mc.Quantity) {
			continue
		}
		if !r.MatchesTarget(mc.ProductID, mc.Category) {
			continue
		}
		if !r.MatchesSegment(mc.CustomerSegment) {
			continue
		}
		if !r.HasUsageHeadroom() {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return matched
}

package rule

import "github.com/google/uuid"

// ConflictPriorityOverlap flags two active rules at the same priority whose
// applicability sets intersect.
const ConflictPriorityOverlap = "priority_overlap"

// Conflict is a read-only diagnostic. Conflicting rules remain eligible to
// match; the matcher's deterministic tie-break resolves the ambiguity.
type Conflict struct {
	Type     string      `json:"type"`
	Priority int         `json:"priority"`
	RuleIDs  []uuid.UUID `json:"rule_ids"`
}

// DetectConflicts inspects every unordered pair of active rules sharing a
// priority and reports those whose applicability overlaps.
func DetectConflicts(rules []PricingRule) []Conflict {
	active := make([]PricingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}

	conflicts := make([]Conflict, 0)
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if a.Priority != b.Priority {
				continue
			}
			if !a.OverlapsApplicability(b) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type:     ConflictPriorityOverlap,
				Priority: a.Priority,
				RuleIDs:  []uuid.UUID{a.ID, b.ID},
			})
		}
	}
	return conflicts
}

// Package normalizer translates raw provider webhook vocabularies into
// canonical per-channel status transitions. The mappings are pure lookup
// tables so that adding a provider is additive and the translation is
// testable without any HTTP or storage in the loop.
package normalizer

import (
	"github.com/hireflowhq/delivery-api/internal/model"
)

// Transition describes what a single provider event means: the canonical
// status to store, the one timestamp column it stamps, and the fallback
// reason for failure-class statuses when the provider supplies none.
type Transition struct {
	Status         string
	TimestampField model.TimestampField
	DefaultReason  string
}

// Rank orders a channel's canonical statuses along its lifecycle.
// Unknown statuses rank zero so any canonical transition may overwrite
// them. Statuses at or above the channel's terminal rank accept no
// further transitions.
type ranks struct {
	order    map[string]int
	terminal int
}

func (r ranks) rank(status string) int {
	return r.order[status]
}

func (r ranks) isTerminal(status string) bool {
	return r.order[status] >= r.terminal
}

// ShouldApply implements the forward-only ordering check shared by both
// channels: a transition applies only when it represents a strictly
// later lifecycle stage than the current status. Duplicate deliveries of
// the same event rank equal and are rejected, which is what makes
// ingestion idempotent.
func (r ranks) shouldApply(current, next string) bool {
	if r.isTerminal(current) {
		return false
	}
	return r.rank(next) > r.rank(current)
}

// highest returns the highest-ranked of the given statuses; the first
// one wins ties. Callers use this to recover the canonical lifecycle
// floor of a record whose stored status is an unmapped (rank zero)
// best-effort value.
func (r ranks) highest(statuses []string) string {
	best := ""
	for _, s := range statuses {
		if best == "" || r.rank(s) > r.rank(best) {
			best = s
		}
	}
	return best
}

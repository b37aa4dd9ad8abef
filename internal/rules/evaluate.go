package rules

import "github.com/ledgerline/inappkit/internal/proposition"

// Match pairs a matched rule with its consequences.
type Match struct {
	Rule         *CompiledRule
	Consequences []Consequence
}

// Evaluate runs every rule against the event and returns matches in rule
// order. The rule slice order is the install order, so results are
// deterministic for a given rule set and event.
func Evaluate(ruleset []*CompiledRule, event map[string]any) []Match {
	var matches []Match
	for _, r := range ruleset {
		if r.Matches(event) {
			matches = append(matches, Match{Rule: r, Consequences: r.Consequences})
		}
	}
	return matches
}

// PartitionConsequences splits a matched rule's consequences into
// event-history operations and everything else, preserving order.
func PartitionConsequences(cons []Consequence) (history, direct []Consequence) {
	for _, c := range cons {
		if c.DetailSchema() == proposition.SchemaEventHistoryOperation {
			history = append(history, c)
		} else {
			direct = append(direct, c)
		}
	}
	return history, direct
}

package engine

import (
	"log/slog"

	"github.com/ledgerline/inappkit/internal/rules"
)

// RulesEngine holds the installed in-app message rules.
//
// Mutation is confined to the Run loop goroutine: ReplaceRules swaps the
// whole set atomically from the loop's perspective because nothing else
// ever touches it. Reads from outside the loop go through Rules(), which
// returns a copy.
type RulesEngine struct {
	ruleset []*rules.CompiledRule
	log     *slog.Logger
}

// NewRulesEngine creates an empty rules engine.
func NewRulesEngine(log *slog.Logger) *RulesEngine {
	if log == nil {
		log = slog.Default()
	}
	return &RulesEngine{log: log}
}

// ReplaceRules discards the current rule set and installs the new one.
// There is no incremental update: every completed response replaces the
// full set, so stale rules from a withdrawn surface cannot survive.
func (re *RulesEngine) ReplaceRules(ruleset []*rules.CompiledRule) {
	re.ruleset = ruleset
	re.log.Debug("in-app rules replaced", "count", len(ruleset))
}

// Evaluate runs the installed rules against an application event and
// returns matches in install order.
func (re *RulesEngine) Evaluate(event map[string]any) []rules.Match {
	return rules.Evaluate(re.ruleset, event)
}

// Rules returns a copy of the installed rule set.
func (re *RulesEngine) Rules() []*rules.CompiledRule {
	out := make([]*rules.CompiledRule, len(re.ruleset))
	copy(out, re.ruleset)
	return out
}

package rules

import (
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ledgerline/inappkit/internal/proposition"
)

// CompiledRule is a rule ready for evaluation: a compiled condition program
// plus its consequences and the attribution of the proposition it came from.
type CompiledRule struct {
	ConditionSrc string
	Consequences []Consequence

	// Attribution back to the owning proposition. Rank drives install
	// ordering; Scope names the surface the rule targets.
	PropositionID string
	Scope         string
	Rank          int

	program *vm.Program
}

// CompileDocument compiles every rule in a document on behalf of its owning
// proposition. Rules whose condition fails to compile, or that carry no
// consequences, are dropped with a debug log; a document that compiles to
// zero rules is a valid empty result, never an error.
func CompileDocument(doc *Document, owner *proposition.Proposition) []*CompiledRule {
	if doc == nil || owner == nil {
		return nil
	}

	compiled := make([]*CompiledRule, 0, len(doc.Rules))
	for _, def := range doc.Rules {
		if len(def.Consequences) == 0 {
			continue
		}
		rule, err := compileRule(def, owner)
		if err != nil {
			slog.Debug("dropping rule with uncompilable condition",
				"proposition_id", owner.UniqueID,
				"condition", def.Condition,
				"error", err,
			)
			continue
		}
		compiled = append(compiled, rule)
	}
	return compiled
}

func compileRule(def RuleDef, owner *proposition.Proposition) (*CompiledRule, error) {
	program, err := expr.Compile(def.Condition,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	return &CompiledRule{
		ConditionSrc:  def.Condition,
		Consequences:  def.Consequences,
		PropositionID: owner.UniqueID,
		Scope:         owner.Scope,
		Rank:          owner.Rank(),
		program:       program,
	}, nil
}

// Matches evaluates the rule's condition against an application event.
// The event map is exposed to the expression as "event". Evaluation is
// total: a runtime error or non-boolean result counts as no match.
func (r *CompiledRule) Matches(event map[string]any) bool {
	if r == nil || r.program == nil {
		return false
	}
	out, err := expr.Run(r.program, map[string]any{"event": event})
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerline/inappkit/internal/history"
	"github.com/ledgerline/inappkit/internal/proposition"
	"github.com/ledgerline/inappkit/internal/rules"
)

// HistoryStore is the event-history boundary the card engine drives
// qualification transitions through. Satisfied by *history.Store.
type HistoryStore interface {
	Query(ctx context.Context, masks []uint32) ([]history.QueryResult, error)
	Write(ctx context.Context, rec history.Record) error
}

// ContentCardEngine evaluates content card rules and maintains the
// qualification state machine on top of the event-history store.
//
// State transitions are recorded as masked history records. Qualification
// is exactly-once per activity: a qualify consequence whose mask is
// already recorded neither rewrites history nor resurfaces the card in
// the evaluation result. History lookups fail open: a query error counts
// as "no record found", so a broken history store degrades toward
// re-qualification rather than permanent suppression.
type ContentCardEngine struct {
	ruleset   []*rules.CompiledRule
	qualified *QualifiedCards
	history   HistoryStore
	registry  *proposition.Registry
	log       *slog.Logger
}

// NewContentCardEngine creates a card engine over the given history store
// and proposition registry.
func NewContentCardEngine(hist HistoryStore, reg *proposition.Registry, log *slog.Logger) *ContentCardEngine {
	if log == nil {
		log = slog.Default()
	}
	return &ContentCardEngine{
		qualified: NewQualifiedCards(),
		history:   hist,
		registry:  reg,
		log:       log,
	}
}

// ReplaceRules swaps the full content card rule set. Run loop only.
func (e *ContentCardEngine) ReplaceRules(ruleset []*rules.CompiledRule) {
	e.ruleset = ruleset
	e.log.Debug("content card rules replaced", "count", len(ruleset))
}

// Rules returns a copy of the installed rule set.
func (e *ContentCardEngine) Rules() []*rules.CompiledRule {
	out := make([]*rules.CompiledRule, len(e.ruleset))
	copy(out, e.ruleset)
	return out
}

// QualifiedFor returns the qualified cards for a surface, in
// qualification order. Safe from any goroutine.
func (e *ContentCardEngine) QualifiedFor(surfaceURI string) []*proposition.Proposition {
	return e.qualified.Get(surfaceURI)
}

// Evaluate runs the card rules against an application event, applies the
// qualification transitions their event-history consequences demand, and
// returns the propositions newly surfaced by this event.
//
// Per matched rule, all masks needed by its history consequences are
// gathered into one batched query, so the loop suspends once per rule at
// most. A rule whose consequences carry no history operation surfaces its
// proposition unconditionally; a rule that disqualifies or unqualifies is
// always excluded from the result.
func (e *ContentCardEngine) Evaluate(ctx context.Context, event map[string]any) []*proposition.Proposition {
	matches := rules.Evaluate(e.ruleset, event)

	var result []*proposition.Proposition
	for _, m := range matches {
		histCons, _ := rules.PartitionConsequences(m.Consequences)
		if len(histCons) == 0 {
			if p := e.owner(m.Rule); p != nil {
				result = appendUniqueProp(result, p)
			}
			continue
		}
		if p := e.applyTransitions(ctx, m.Rule, histCons); p != nil {
			result = appendUniqueProp(result, p)
		}
	}
	return result
}

// maskPlan records where one consequence's masks sit in the batched query.
type maskPlan struct {
	cons      rules.Consequence
	eventType string
	activity  string
	idx       int
}

// applyTransitions executes the history consequences of one matched rule.
// Returns the owning proposition when the rule newly qualified it, nil
// otherwise.
func (e *ContentCardEngine) applyTransitions(ctx context.Context, rule *rules.CompiledRule, cons []rules.Consequence) *proposition.Proposition {
	var masks []uint32
	var plans []maskPlan

	for _, c := range cons {
		eventType := c.HistoryEventType()
		activity := c.HistoryActivityID()
		if activity == "" {
			e.log.Debug("history consequence without activity id ignored",
				"proposition_id", rule.PropositionID,
				"consequence_id", c.ID,
			)
			continue
		}
		switch eventType {
		case rules.EventTypeQualify:
			plans = append(plans, maskPlan{cons: c, eventType: eventType, activity: activity, idx: len(masks)})
			masks = append(masks, uint32(rules.NewMask(rules.EventTypeQualify, activity)))
		case rules.EventTypeDisqualify, rules.EventTypeUnqualify:
			plans = append(plans, maskPlan{cons: c, eventType: eventType, activity: activity, idx: len(masks)})
			masks = append(masks,
				uint32(rules.NewMask(eventType, activity)),
				uint32(rules.NewMask(rules.EventTypeQualify, activity)),
				uint32(rules.NewMask(rules.EventTypeTrigger, activity)),
			)
		default:
			// Not an actionable transition; no state change.
		}
	}
	if len(plans) == 0 {
		return nil
	}

	// The one suspension point: a single batched query covers every mask
	// this rule needs. On error, fail open toward "not found".
	results, err := e.history.Query(ctx, masks)
	if err != nil {
		e.log.Warn("history query failed, treating masks as unrecorded",
			"proposition_id", rule.PropositionID,
			"error", err,
		)
		results = nil
	}
	found := func(i int) bool {
		return results != nil && i < len(results) && results[i].Found()
	}

	var qualifiedProp *proposition.Proposition
	transitioned := false

	for _, plan := range plans {
		switch plan.eventType {
		case rules.EventTypeQualify:
			if found(plan.idx) {
				// Already qualified once; suppress the write and keep the
				// card out of this event's result.
				e.log.Debug("qualify already recorded",
					"activity_id", plan.activity,
				)
				continue
			}
			e.write(ctx, rules.EventTypeQualify, plan.activity)
			if p := e.owner(rule); p != nil {
				e.qualified.Add(rule.Scope, p)
				qualifiedProp = p
			}

		case rules.EventTypeDisqualify, rules.EventTypeUnqualify:
			if !found(plan.idx) {
				e.write(ctx, plan.eventType, plan.activity)
			}
			removed := e.qualified.RemoveActivity(plan.activity)
			e.log.Debug("card transition applied",
				"event_type", plan.eventType,
				"activity_id", plan.activity,
				"removed", removed,
				"was_qualified", found(plan.idx+1),
			)
			transitioned = true
		}
	}

	if transitioned {
		return nil
	}
	return qualifiedProp
}

// HandleEventHistoryConsequence applies a disqualify consequence emitted
// on the direct path, outside card rule evaluation. Anything other than a
// disqualify with a resolvable activity id is a no-op.
func (e *ContentCardEngine) HandleEventHistoryConsequence(c rules.Consequence) {
	if c.HistoryEventType() != rules.EventTypeDisqualify {
		return
	}
	activity := c.HistoryActivityID()
	if activity == "" {
		return
	}
	removed := e.qualified.RemoveActivity(activity)
	e.log.Debug("direct disqualify applied",
		"activity_id", activity,
		"removed", removed,
	)
}

// Clear drops the qualified card set. Called at teardown.
func (e *ContentCardEngine) Clear() {
	e.qualified.Clear()
}

// write records a transition fire-and-forget; failures are logged and the
// in-memory state change proceeds regardless.
func (e *ContentCardEngine) write(ctx context.Context, eventType, activityID string) {
	rec := history.Record{
		Mask:       uint32(rules.NewMask(eventType, activityID)),
		EventType:  eventType,
		ActivityID: activityID,
		Timestamp:  time.Now().UTC(),
	}
	if err := e.history.Write(ctx, rec); err != nil {
		e.log.Warn("history write failed",
			"event_type", eventType,
			"activity_id", activityID,
			"error", err,
		)
	}
}

// owner resolves the proposition a rule came from; fails soft when the
// registry no longer holds it.
func (e *ContentCardEngine) owner(rule *rules.CompiledRule) *proposition.Proposition {
	if e.registry == nil {
		return nil
	}
	p, ok := e.registry.Resolve(rule.PropositionID)
	if !ok {
		e.log.Debug("rule owner no longer registered",
			"proposition_id", rule.PropositionID,
		)
		return nil
	}
	return p
}

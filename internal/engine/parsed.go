package engine

import (
	"log/slog"
	"sort"

	"github.com/ledgerline/inappkit/internal/proposition"
	"github.com/ledgerline/inappkit/internal/rules"
)

// ParsedPropositions is the classified output of one merged response batch.
//
// Every field is keyed or grouped by surface so later steps can honor the
// requested-surface order. Rule lists and persist lists are rank-sorted
// stably per surface: rank ascending, arrival order preserved within a
// rank, so a cache reload reproduces the identical install order.
type ParsedPropositions struct {
	// InfoToCache maps a rule consequence id to the attribution record of
	// the proposition that produced it. Tracking events carry the
	// consequence id, not the proposition id.
	InfoToCache map[string]proposition.Info

	// PropositionsToCache holds code-based (JSON/HTML content)
	// propositions, dispatched back to the host rather than installed as
	// rules.
	PropositionsToCache map[proposition.Surface][]*proposition.Proposition

	// PropositionsToPersist holds in-app message propositions destined for
	// the durable cache.
	PropositionsToPersist map[proposition.Surface][]*proposition.Proposition

	// SurfaceRules holds compiled rules grouped by target schema and
	// surface.
	SurfaceRules map[proposition.SchemaType]map[proposition.Surface][]*rules.CompiledRule
}

func newParsedPropositions() *ParsedPropositions {
	return &ParsedPropositions{
		InfoToCache:           make(map[string]proposition.Info),
		PropositionsToCache:   make(map[proposition.Surface][]*proposition.Proposition),
		PropositionsToPersist: make(map[proposition.Surface][]*proposition.Proposition),
		SurfaceRules:          make(map[proposition.SchemaType]map[proposition.Surface][]*rules.CompiledRule),
	}
}

// ParsePropositions classifies a merged response batch.
//
// Surfaces are visited in requested order; within a surface, propositions
// in arrival order. A nil proposition, a proposition with no items, or a
// duplicate unique id on the same surface contributes nothing. Items
// classify by schema:
//
//   - ruleset items are unwrapped exactly one level: the document is
//     compiled and the first consequence's declared schema decides the
//     bucket. A consequence that itself declares a ruleset is dropped,
//     never re-expanded.
//   - in-app messages install rules and persist their proposition.
//   - content cards and event-history operations install rules only.
//   - json/html content is code-based: the proposition is collected for
//     dispatch, no rules install.
//   - default-content and unknown schemas are dropped.
func ParsePropositions(bySurface map[proposition.Surface][]*proposition.Proposition, requested []proposition.Surface) *ParsedPropositions {
	pp := newParsedPropositions()

	for _, surface := range requested {
		seen := make(map[string]bool)
		for _, prop := range bySurface[surface] {
			if prop == nil || len(prop.Items) == 0 {
				continue
			}
			if seen[prop.UniqueID] {
				continue
			}
			seen[prop.UniqueID] = true
			for _, item := range prop.Items {
				pp.classifyItem(surface, prop, item)
			}
		}
	}

	pp.sortByRank()
	return pp
}

func (pp *ParsedPropositions) classifyItem(surface proposition.Surface, prop *proposition.Proposition, item *proposition.Item) {
	schema := item.Schema

	var compiled []*rules.CompiledRule
	var consequenceID string

	if schema == proposition.SchemaRuleset {
		doc, err := rules.ParseDocument(item.Data)
		if err != nil {
			slog.Debug("skipping ruleset item with unparseable document",
				"proposition_id", prop.UniqueID,
				"item_id", item.ItemID,
				"error", err,
			)
			return
		}
		compiled = rules.CompileDocument(doc, prop)
		if len(compiled) == 0 {
			return
		}
		first := compiled[0].Consequences[0]
		if !first.HasDetail() {
			return
		}
		consequenceID = first.ID
		// One-level unwrap: the consequence schema decides the bucket.
		// A consequence declaring another ruleset falls through to the
		// default case below and is dropped.
		schema = first.DetailSchema()
	}

	switch schema {
	case proposition.SchemaInApp:
		if compiled == nil {
			// A bare in-app item outside a ruleset carries no condition
			// to install; nothing to do.
			return
		}
		pp.InfoToCache[consequenceID] = proposition.InfoOf(prop)
		pp.PropositionsToPersist[surface] = appendUniqueProp(pp.PropositionsToPersist[surface], prop)
		pp.addRules(proposition.SchemaInApp, surface, compiled)

	case proposition.SchemaContentCard:
		if compiled == nil {
			return
		}
		pp.InfoToCache[consequenceID] = proposition.InfoOf(prop)
		pp.addRules(proposition.SchemaContentCard, surface, compiled)

	case proposition.SchemaEventHistoryOperation:
		if compiled == nil {
			return
		}
		pp.addRules(proposition.SchemaEventHistoryOperation, surface, compiled)

	case proposition.SchemaJSONContent, proposition.SchemaHTMLContent:
		pp.PropositionsToCache[surface] = appendUniqueProp(pp.PropositionsToCache[surface], prop)

	default:
		// default-content, unknown, nested rulesets: dropped.
	}
}

func (pp *ParsedPropositions) addRules(schema proposition.SchemaType, surface proposition.Surface, compiled []*rules.CompiledRule) {
	bySurface := pp.SurfaceRules[schema]
	if bySurface == nil {
		bySurface = make(map[proposition.Surface][]*rules.CompiledRule)
		pp.SurfaceRules[schema] = bySurface
	}
	bySurface[surface] = append(bySurface[surface], compiled...)
}

// sortByRank orders every per-surface list stably by rank ascending.
func (pp *ParsedPropositions) sortByRank() {
	for _, bySurface := range pp.SurfaceRules {
		for _, list := range bySurface {
			sort.SliceStable(list, func(i, j int) bool {
				return list[i].Rank < list[j].Rank
			})
		}
	}
	for _, list := range pp.PropositionsToPersist {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Rank() < list[j].Rank()
		})
	}
}

// appendUniqueProp appends prop unless a proposition with the same unique
// id is already in the list. A proposition with several items of the same
// code-based schema still lands in its surface list once.
func appendUniqueProp(list []*proposition.Proposition, prop *proposition.Proposition) []*proposition.Proposition {
	for _, p := range list {
		if p.UniqueID == prop.UniqueID {
			return list
		}
	}
	return append(list, prop)
}

// RulesFor concatenates the compiled rules for one schema across surfaces
// in the given order.
func (pp *ParsedPropositions) RulesFor(schema proposition.SchemaType, surfaces []proposition.Surface) []*rules.CompiledRule {
	bySurface := pp.SurfaceRules[schema]
	if bySurface == nil {
		return nil
	}
	var out []*rules.CompiledRule
	for _, s := range surfaces {
		out = append(out, bySurface[s]...)
	}
	return out
}

package engine

import (
	"context"
	"log/slog"

	"github.com/ledgerline/inappkit/internal/bus"
	"github.com/ledgerline/inappkit/internal/proposition"
)

// PropositionPersister is the durable cache boundary. Satisfied by
// *store.PropositionCache.
type PropositionPersister interface {
	Load(ctx context.Context) (map[string][]*proposition.Proposition, error)
	Update(ctx context.Context, toPersist map[string][]*proposition.Proposition, surfacesToRemove []string) error
}

// Reconciler tracks outstanding personalization requests and reconciles
// their multi-notification responses into installed rule sets and the
// durable cache.
//
// All methods run on the Run loop goroutine; none of the maps are locked.
// A request lives here from TrackRequest until its completion, failure, or
// cancellation removes every trace of it, so a later request reusing the
// same id can never see stale batches.
type Reconciler struct {
	messageRules *RulesEngine
	cards        *ContentCardEngine
	persister    PropositionPersister
	dispatcher   bus.Dispatcher
	registry     *proposition.Registry
	log          *slog.Logger

	// inProgress accumulates notification batches per request id, grouped
	// by surface. Batches only ever append; nothing merges or replaces
	// until completion.
	inProgress map[string]map[proposition.Surface][]*proposition.Proposition
	// requested remembers the surface list each fetch asked for, in
	// request order.
	requested map[string][]proposition.Surface
	// callbacks fire once per request: true on completion, false on
	// failure or cancellation.
	callbacks map[string]func(success bool)

	// infoByConsequence is the attribution table from the most recent
	// completed response, keyed by rule consequence id.
	infoByConsequence map[string]proposition.Info
}

// NewReconciler wires a reconciler over the rule engines, cache, and
// dispatcher.
func NewReconciler(
	messageRules *RulesEngine,
	cards *ContentCardEngine,
	persister PropositionPersister,
	dispatcher bus.Dispatcher,
	registry *proposition.Registry,
	log *slog.Logger,
) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		messageRules: messageRules,
		cards:        cards,
		persister:    persister,
		dispatcher:   dispatcher,
		registry:     registry,
		log:          log,
		inProgress:   make(map[string]map[proposition.Surface][]*proposition.Proposition),
		requested:    make(map[string][]proposition.Surface),
		callbacks:    make(map[string]func(bool)),
	}
}

// TrackRequest registers a fetch before any of its notifications arrive.
// Registering an id twice overwrites the earlier registration.
func (r *Reconciler) TrackRequest(id string, surfaces []proposition.Surface, onComplete func(bool)) {
	if id == "" || len(surfaces) == 0 {
		return
	}
	r.requested[id] = surfaces
	if onComplete != nil {
		r.callbacks[id] = onComplete
	}
	r.log.Debug("tracking personalization request",
		"request_id", id,
		"surfaces", len(surfaces),
	)
}

// Outstanding reports whether a request id is still being tracked.
func (r *Reconciler) Outstanding(id string) bool {
	_, ok := r.requested[id]
	return ok
}

// InfoFor returns the attribution record for a rule consequence id from
// the most recently completed response.
func (r *Reconciler) InfoFor(consequenceID string) (proposition.Info, bool) {
	info, ok := r.infoByConsequence[consequenceID]
	return info, ok
}

// OnNotification accumulates one notification batch for an outstanding
// request. Payload fragments decode individually: malformed fragments and
// fragments scoped to an invalid surface are dropped, the rest append to
// the request's per-surface lists. Batches for unknown request ids are
// ignored.
func (r *Reconciler) OnNotification(requestID string, payload []map[string]any) {
	if requestID == "" {
		return
	}
	if _, ok := r.requested[requestID]; !ok {
		r.log.Debug("notification for unknown request ignored", "request_id", requestID)
		return
	}
	props := proposition.FromMaps(payload)
	if len(props) == 0 {
		return
	}

	bySurface := r.inProgress[requestID]
	if bySurface == nil {
		bySurface = make(map[proposition.Surface][]*proposition.Proposition)
		r.inProgress[requestID] = bySurface
	}
	for _, p := range props {
		surface, err := proposition.SurfaceFromURI(p.Scope)
		if err != nil {
			r.log.Debug("dropping proposition with invalid surface",
				"request_id", requestID,
				"scope", p.Scope,
			)
			continue
		}
		bySurface[surface] = append(bySurface[surface], p)
	}
}

// OnComplete finishes an outstanding request: the accumulated batches are
// classified, both rule sets are replaced, in-app propositions persist to
// the cache while requested surfaces that returned none are evicted from
// it, and code-based propositions dispatch back to the host. Completion
// for an unknown id is a no-op. Bookkeeping for the id is removed in
// every case.
func (r *Reconciler) OnComplete(ctx context.Context, requestID string) {
	surfaces, ok := r.requested[requestID]
	if !ok {
		r.log.Debug("completion for unknown request ignored", "request_id", requestID)
		return
	}
	merged := r.inProgress[requestID]
	cb := r.callbacks[requestID]
	r.forget(requestID)

	if len(merged) == 0 {
		// An empty response is a valid outcome: nothing changes, neither
		// rule sets nor cache.
		r.log.Debug("request completed empty", "request_id", requestID)
		if cb != nil {
			cb(true)
		}
		return
	}

	parsed := ParsePropositions(merged, surfaces)

	// Register every arrived proposition so rule attribution and item
	// owner handles resolve. The accumulated batches are the source of
	// truth for this response; prior registrations for the same ids are
	// replaced.
	for _, props := range merged {
		for _, p := range props {
			r.registry.Register(p)
		}
	}
	r.infoByConsequence = parsed.InfoToCache

	r.messageRules.ReplaceRules(parsed.RulesFor(proposition.SchemaInApp, surfaces))

	cardRules := parsed.RulesFor(proposition.SchemaContentCard, surfaces)
	cardRules = append(cardRules, parsed.RulesFor(proposition.SchemaEventHistoryOperation, surfaces)...)
	r.cards.ReplaceRules(cardRules)

	r.persist(ctx, parsed, surfaces)
	r.dispatchCodeBased(parsed, surfaces)

	if cb != nil {
		cb(true)
	}
}

// Cancel drops an outstanding request without touching rule sets or the
// cache. The callback, if any, fires with failure.
func (r *Reconciler) Cancel(requestID string) {
	if _, ok := r.requested[requestID]; !ok {
		return
	}
	cb := r.callbacks[requestID]
	r.forget(requestID)
	r.log.Debug("request cancelled", "request_id", requestID)
	if cb != nil {
		cb(false)
	}
}

func (r *Reconciler) forget(requestID string) {
	delete(r.inProgress, requestID)
	delete(r.requested, requestID)
	delete(r.callbacks, requestID)
}

// persist writes in-app propositions to the durable cache. A requested
// surface that completed without any in-app proposition is removed from
// the cache; surfaces outside this request are untouched. Persistence
// failure is recovered locally: the in-memory rule sets already reflect
// the response.
func (r *Reconciler) persist(ctx context.Context, parsed *ParsedPropositions, surfaces []proposition.Surface) {
	toPersist := make(map[string][]*proposition.Proposition, len(parsed.PropositionsToPersist))
	for s, list := range parsed.PropositionsToPersist {
		toPersist[s.URI()] = list
	}
	var toRemove []string
	for _, s := range surfaces {
		if _, ok := parsed.PropositionsToPersist[s]; !ok {
			toRemove = append(toRemove, s.URI())
		}
	}
	if err := r.persister.Update(ctx, toPersist, toRemove); err != nil {
		r.log.Error("proposition cache update failed",
			"persisted", len(toPersist),
			"removed", len(toRemove),
			"error", err,
		)
	}
}

// dispatchCodeBased hands json/html content propositions back to the host
// over the bus, in requested-surface order.
func (r *Reconciler) dispatchCodeBased(parsed *ParsedPropositions, surfaces []proposition.Surface) {
	if len(parsed.PropositionsToCache) == 0 {
		return
	}
	var raws []map[string]any
	for _, s := range surfaces {
		for _, p := range parsed.PropositionsToCache[s] {
			raws = append(raws, p.ToMap())
		}
	}
	if len(raws) == 0 {
		return
	}
	r.dispatcher.Dispatch(bus.NewPropositionsReceived(raws))
}

package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ledgerline/inappkit/internal/bus"
	"github.com/ledgerline/inappkit/internal/proposition"
	"github.com/ledgerline/inappkit/internal/registry"
)

// Engine is the single-writer personalization event loop.
//
// The engine processes tasks (bus events and fetch registrations) in FIFO
// order: response reconciliation, rule set swaps, and qualification
// transitions all run on the one Run goroutine.
//
// Thread-safety model:
//   - Enqueue, FetchPropositions, QualifiedContentCards: safe from any
//     goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	queue         *taskQueue
	reconciler    *Reconciler
	messageRules  *RulesEngine
	cards         *ContentCardEngine
	presentations *registry.PresentationRegistry
	propositions  *proposition.Registry
	persister     PropositionPersister
	idGen         RequestIDGenerator
	appID         string
	log           *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRequestIDGenerator overrides the request id source. Tests install a
// FixedGenerator for deterministic correlation.
func WithRequestIDGenerator(gen RequestIDGenerator) Option {
	return func(e *Engine) { e.idGen = gen }
}

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine over the durable proposition cache, the event
// history store, and the outbound dispatcher. appID names the host
// application and anchors the default surface.
func New(persister PropositionPersister, hist HistoryStore, dispatcher bus.Dispatcher, appID string, opts ...Option) *Engine {
	e := &Engine{
		queue:         newTaskQueue(),
		presentations: registry.NewPresentationRegistry(),
		propositions:  proposition.NewRegistry(),
		persister:     persister,
		idGen:         UUIDv7Generator{},
		appID:         appID,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.messageRules = NewRulesEngine(e.log)
	e.cards = NewContentCardEngine(hist, e.propositions, e.log)
	e.reconciler = NewReconciler(e.messageRules, e.cards, persister, dispatcher, e.propositions, e.log)
	return e
}

// Enqueue submits a bus event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false once the engine has stopped.
func (e *Engine) Enqueue(ev bus.Event) bool {
	return e.queue.Enqueue(task{event: &ev})
}

// FetchPropositions registers a personalization request for the given
// surface URIs and returns its correlation id. Invalid URIs are dropped;
// an empty or all-invalid list falls back to the application's default
// surface. onComplete, if non-nil, fires exactly once: true when the
// response completes, false on failure or cancellation.
//
// The registration itself is processed on the Run loop, so a notification
// enqueued after this call can never observe an untracked id.
func (e *Engine) FetchPropositions(surfaceURIs []string, onComplete func(success bool)) (string, error) {
	surfaces := proposition.FilterValid(surfaceURIs)
	if len(surfaces) == 0 {
		def, err := proposition.DefaultSurface(e.appID)
		if err != nil {
			return "", err
		}
		surfaces = []proposition.Surface{def}
	}

	id := e.idGen.Generate()
	ok := e.queue.Enqueue(task{track: &trackRequest{
		id:         id,
		surfaces:   surfaces,
		onComplete: onComplete,
	}})
	if !ok {
		return "", errors.New("engine stopped")
	}
	return id, nil
}

// QualifiedContentCards returns the content cards the user currently
// qualifies for on a surface. Safe from any goroutine.
func (e *Engine) QualifiedContentCards(surfaceURI string) []*proposition.Proposition {
	return e.cards.QualifiedFor(surfaceURI)
}

// Presentations exposes the registry of in-app messages pending display.
func (e *Engine) Presentations() *registry.PresentationRegistry {
	return e.presentations
}

// InfoFor returns the attribution record for a rule consequence id from
// the most recently completed response.
func (e *Engine) InfoFor(consequenceID string) (proposition.Info, bool) {
	return e.reconciler.InfoFor(consequenceID)
}

// Bootstrap reloads the durable proposition cache and reinstalls its rule
// sets, restoring in-app personalization from a previous run before any
// live response arrives. Call before Run; a load failure leaves the
// engine empty but usable.
func (e *Engine) Bootstrap(ctx context.Context) error {
	cached, err := e.persister.Load(ctx)
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		return nil
	}

	bySurface := make(map[proposition.Surface][]*proposition.Proposition, len(cached))
	surfaces := make([]proposition.Surface, 0, len(cached))
	for uri, props := range cached {
		surface, err := proposition.SurfaceFromURI(uri)
		if err != nil {
			e.log.Debug("dropping cached entry with invalid surface", "uri", uri)
			continue
		}
		bySurface[surface] = props
		surfaces = append(surfaces, surface)
	}

	parsed := ParsePropositions(bySurface, surfaces)
	for _, props := range bySurface {
		for _, p := range props {
			e.propositions.Register(p)
		}
	}
	e.messageRules.ReplaceRules(parsed.RulesFor(proposition.SchemaInApp, surfaces))
	e.log.Info("propositions restored from cache", "surfaces", len(surfaces))
	return nil
}

// Run starts the single-writer event loop. Blocks until the context is
// cancelled.
//
// Must be called from exactly ONE goroutine. All reconciliation, rule
// evaluation, and qualification state changes happen here.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "app_id", e.appID)

	for {
		t, ok := e.queue.TryDequeue()
		if ok {
			e.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			// Loop back to TryDequeue.
		}
	}
}

func (e *Engine) processTask(ctx context.Context, t task) {
	switch {
	case t.track != nil:
		e.reconciler.TrackRequest(t.track.id, t.track.surfaces, t.track.onComplete)

	case t.event != nil:
		e.processEvent(ctx, *t.event)
	}
}

func (e *Engine) processEvent(ctx context.Context, ev bus.Event) {
	switch ev.Type {
	case bus.TypePersonalizationNotification:
		e.reconciler.OnNotification(ev.RequestEventID(), ev.Payload())

	case bus.TypeProcessingComplete:
		e.reconciler.OnComplete(ctx, ev.EndingEventID())

	case bus.TypeRequestFailed:
		id := ev.RequestEventID()
		if id == "" {
			id = ev.EndingEventID()
		}
		e.reconciler.Cancel(id)

	case bus.TypeApplicationEvent:
		e.evaluateApplicationEvent(ctx, ev.Data)

	default:
		e.log.Debug("ignoring event", "type", ev.Type)
	}
}

// evaluateApplicationEvent runs both rule sets against an application
// event. Matched in-app consequences become messages in the presentation
// registry; a consequence missing a required field is logged and skipped
// without failing the rest of the batch.
func (e *Engine) evaluateApplicationEvent(ctx context.Context, event map[string]any) {
	for _, m := range e.messageRules.Evaluate(event) {
		for _, c := range m.Consequences {
			switch c.DetailSchema() {
			case proposition.SchemaInApp:
				msg, err := registry.NewMessage(c.ID, m.Rule.Scope, c.DetailData())
				if err != nil {
					var rfe *registry.RequiredFieldError
					if errors.As(err, &rfe) {
						e.log.Warn("in-app consequence missing required field",
							"consequence_id", c.ID,
							"field", rfe.Field,
						)
					} else {
						e.log.Warn("in-app message construction failed",
							"consequence_id", c.ID,
							"error", err,
						)
					}
					continue
				}
				e.presentations.Register(msg)

			case proposition.SchemaEventHistoryOperation:
				e.cards.HandleEventHistoryConsequence(c)
			}
		}
	}

	if qualified := e.cards.Evaluate(ctx, event); len(qualified) > 0 {
		e.log.Debug("content cards surfaced", "count", len(qualified))
	}
}

// Package bus defines the event shapes the core exchanges with the event
// bus. The transport itself is an external collaborator assumed to deliver
// reliably and in order per source; this package carries only the shapes
// plus an in-memory dispatcher used for wiring and tests.
package bus

import "sync"

// Event types the core consumes and produces.
const (
	// TypePersonalizationNotification delivers one batch of proposition
	// payloads for an outstanding fetch.
	TypePersonalizationNotification = "personalization.notification"
	// TypeProcessingComplete signals that all notifications for one
	// logical request have been delivered.
	TypeProcessingComplete = "personalization.complete"
	// TypeRequestFailed signals an upstream fetch failure; the pending
	// request's bookkeeping must be cancelled.
	TypeRequestFailed = "personalization.error"
	// TypePropositionsReceived is emitted by the core when code-based
	// propositions arrive; carries the raw payload list.
	TypePropositionsReceived = "personalization.propositions"
	// TypeApplicationEvent is a runtime application event evaluated
	// against the installed rule sets.
	TypeApplicationEvent = "application.event"
)

// Event sources.
const (
	SourceDecisioning = "decisioning"
	SourceApplication = "application"
	SourceEngine      = "inappkit"
)

// Data keys for the event shapes above.
const (
	KeyPayload        = "payload"
	KeyRequestEventID = "requestEventId"
	KeyEndingEventID  = "endingEventId"
	KeyPropositions   = "propositions"
)

// Event is the opaque envelope exchanged on the bus.
type Event struct {
	Type   string
	Source string
	ID     string
	Data   map[string]any
}

// RequestEventID extracts the request correlation id from a
// personalization notification, or "".
func (e Event) RequestEventID() string {
	id, _ := e.Data[KeyRequestEventID].(string)
	return id
}

// EndingEventID extracts the completed request id from a
// processing-complete event, or "".
func (e Event) EndingEventID() string {
	id, _ := e.Data[KeyEndingEventID].(string)
	return id
}

// Payload extracts the proposition payload list from a personalization
// notification. Entries that are not maps are dropped.
func (e Event) Payload() []map[string]any {
	raw, _ := e.Data[KeyPayload].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// NewPropositionsReceived builds the outgoing event carrying code-based
// proposition payloads.
func NewPropositionsReceived(propositions []map[string]any) Event {
	list := make([]any, 0, len(propositions))
	for _, p := range propositions {
		list = append(list, any(p))
	}
	return Event{
		Type:   TypePropositionsReceived,
		Source: SourceEngine,
		Data:   map[string]any{KeyPropositions: list},
	}
}

// Dispatcher publishes events produced by the core.
type Dispatcher interface {
	Dispatch(Event)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(Event)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(e Event) { f(e) }

// Memory is an in-memory dispatcher that fans events out to subscribers
// registered per event type. Subscribers run synchronously on the
// dispatching goroutine, matching the reliable-in-order assumption.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]func(Event)
}

// NewMemory creates an empty in-memory dispatcher.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]func(Event))}
}

// Subscribe registers a handler for an event type.
func (m *Memory) Subscribe(eventType string, fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[eventType] = append(m.subs[eventType], fn)
}

// Dispatch implements Dispatcher.
func (m *Memory) Dispatch(e Event) {
	m.mu.RLock()
	handlers := m.subs[e.Type]
	m.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}

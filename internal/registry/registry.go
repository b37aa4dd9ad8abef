// Package registry holds the presentation-layer registry: in-app messages
// constructed from matched rule consequences, looked up later by the
// opaque presentation id a UI callback carries.
//
// The registry is constructor-injected, never a package-level singleton,
// so it stays testable and multiple engine instances can coexist in one
// process. Its lifecycle ends with Clear at extension teardown.
package registry

import (
	"fmt"
	"sync"
)

// RequiredFieldError reports a message constructed from a consequence that
// is missing a field the presentation layer cannot work without. This is
// the one failure the core signals to its caller instead of dropping and
// continuing: the caller needs to know no usable message was produced.
type RequiredFieldError struct {
	Field string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("message missing required field %q", e.Field)
}

// Message is an in-app message ready for presentation.
type Message struct {
	// PresentationID is the opaque id UI callbacks reference the message
	// by; it is the rule consequence id that produced the message.
	PresentationID string
	// SurfaceURI names the surface the message targets.
	SurfaceURI string
	// Content is the renderable payload.
	Content string
	// Settings carries presentation hints (placement, animation, gestures)
	// opaque to the core.
	Settings map[string]any
}

// Detail-data keys for message construction.
const (
	keyContent  = "content"
	keySettings = "mobileParameters"
)

// NewMessage builds a message from a consequence's detail data.
// The content field is required; its absence returns a RequiredFieldError.
func NewMessage(presentationID, surfaceURI string, data map[string]any) (*Message, error) {
	if presentationID == "" {
		return nil, &RequiredFieldError{Field: "id"}
	}
	content, _ := data[keyContent].(string)
	if content == "" {
		return nil, &RequiredFieldError{Field: keyContent}
	}
	msg := &Message{
		PresentationID: presentationID,
		SurfaceURI:     surfaceURI,
		Content:        content,
	}
	if settings, ok := data[keySettings].(map[string]any); ok {
		msg.Settings = settings
	}
	return msg, nil
}

// PresentationRegistry maps presentation ids to messages so a UI callback
// arriving with only an id can recover the owning message.
//
// Thread-safety: safe for concurrent use; UI callbacks are not guaranteed
// to run on the engine's worker goroutine.
type PresentationRegistry struct {
	mu       sync.RWMutex
	messages map[string]*Message
}

// NewPresentationRegistry creates an empty registry.
func NewPresentationRegistry() *PresentationRegistry {
	return &PresentationRegistry{messages: make(map[string]*Message)}
}

// Register records a message under its presentation id. Re-registering an
// id replaces the previous message.
func (r *PresentationRegistry) Register(msg *Message) {
	if msg == nil || msg.PresentationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.PresentationID] = msg
}

// Lookup returns the message registered under an id.
func (r *PresentationRegistry) Lookup(presentationID string) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[presentationID]
	return msg, ok
}

// Remove drops a message once its presentation finished.
func (r *PresentationRegistry) Remove(presentationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, presentationID)
}

// Len returns the number of registered messages.
func (r *PresentationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

// Clear drops every registered message. Called at extension teardown.
func (r *PresentationRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = make(map[string]*Message)
}

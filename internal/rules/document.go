package rules

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ledgerline/inappkit/internal/proposition"
)

// Detail keys within a consequence.
const (
	detailKeySchema    = "schema"
	detailKeyData      = "data"
	dataKeyContent     = "content"
	contentKeyEvent    = "eventType"
	contentKeyMessage  = "messageId"
	contentKeyActivity = "activityId"
)

// Event-history operation event types.
const (
	EventTypeQualify    = "qualify"
	EventTypeDisqualify = "disqualify"
	EventTypeUnqualify  = "unqualify"
	EventTypeTrigger    = "trigger"
)

// ErrMalformedDocument indicates rule document JSON that cannot be decoded.
var ErrMalformedDocument = errors.New("malformed rule document")

// Document is a decoded rule document.
type Document struct {
	Version int       `json:"version"`
	Rules   []RuleDef `json:"rules"`
}

// RuleDef is one rule definition: a condition expression plus the
// consequences emitted when it matches.
type RuleDef struct {
	Condition    string        `json:"condition"`
	Consequences []Consequence `json:"consequences"`
}

// Consequence is a single rule consequence. Detail carries the re-derived
// schema tag plus the opaque data payload for that schema.
type Consequence struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Detail map[string]any `json:"detail"`
}

// DetailSchema returns the schema tag declared in the consequence detail.
func (c Consequence) DetailSchema() proposition.SchemaType {
	tag, _ := c.Detail[detailKeySchema].(string)
	return proposition.ParseSchemaType(tag)
}

// DetailData returns the consequence's opaque data payload, or nil.
func (c Consequence) DetailData() map[string]any {
	data, _ := c.Detail[detailKeyData].(map[string]any)
	return data
}

// HasDetail reports whether the consequence carries a usable detail map.
// A missing or empty detail disqualifies the owning item from
// classification entirely.
func (c Consequence) HasDetail() bool {
	return len(c.Detail) > 0
}

// content returns the event-history content map, or nil.
func (c Consequence) content() map[string]any {
	data := c.DetailData()
	if data == nil {
		return nil
	}
	content, _ := data[dataKeyContent].(map[string]any)
	return content
}

// HistoryEventType returns the event-history operation type
// (qualify/disqualify/unqualify), or "" when absent.
func (c Consequence) HistoryEventType() string {
	t, _ := c.content()[contentKeyEvent].(string)
	return t
}

// HistoryMessageID returns the message id the operation refers to, or "".
func (c Consequence) HistoryMessageID() string {
	id, _ := c.content()[contentKeyMessage].(string)
	return id
}

// HistoryActivityID returns the explicit activityId out of the content map
// when present, otherwise the activity id derived from the message id.
func (c Consequence) HistoryActivityID() string {
	if id, ok := c.content()[contentKeyActivity].(string); ok && id != "" {
		return id
	}
	if msg := c.HistoryMessageID(); msg != "" {
		return ActivityID(msg)
	}
	return ""
}

// ParseDocument decodes a rule document from an item's data map.
// The map is the ruleset item payload itself; it is round-tripped through
// JSON so nested structures decode into the typed document form.
func ParseDocument(data map[string]any) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrMalformedDocument
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &doc, nil
}

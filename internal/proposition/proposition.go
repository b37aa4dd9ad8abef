package proposition

import (
	"encoding/json"
	"errors"
)

// Wire keys for the opaque proposition fragments delivered on the bus.
const (
	keyID           = "id"
	keyScope        = "scope"
	keyScopeDetails = "scopeDetails"
	keyItems        = "items"
	keySchema       = "schema"
	keyData         = "data"
	keyRank         = "rank"
)

// DefaultRank applies when scopeDetails carries no rank.
const DefaultRank = 1

// ErrMalformedProposition indicates a payload fragment missing its id or
// scope. Malformed fragments are dropped by batch callers, never fatal.
var ErrMalformedProposition = errors.New("malformed proposition payload")

// Proposition groups one or more schema-typed items under one scope+rank.
type Proposition struct {
	UniqueID     string
	Scope        string
	ScopeDetails map[string]any
	Items        []*Item
}

// Item is a single schema-typed payload within a proposition.
type Item struct {
	ItemID string
	Schema SchemaType
	Data   map[string]any

	owner ownerHandle
}

// ownerHandle is the explicit weak reference from an item back to its
// proposition: a lookup-by-id into the Registry that may return not-found
// once the owner has been released.
type ownerHandle struct {
	registry *Registry
	id       string
}

// Owner resolves the owning proposition through the registry.
// Returns (nil, false) when the item was never registered or the owner has
// been released; callers fail soft on a missing resolution.
func (it *Item) Owner() (*Proposition, bool) {
	if it.owner.registry == nil {
		return nil, false
	}
	return it.owner.registry.Resolve(it.owner.id)
}

// Rank returns scopeDetails.rank, defaulting to DefaultRank when absent or
// non-numeric. Ranks order rule installation ascending.
func (p *Proposition) Rank() int {
	if p.ScopeDetails == nil {
		return DefaultRank
	}
	switch v := p.ScopeDetails[keyRank].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		return DefaultRank
	default:
		return DefaultRank
	}
}

// ActivityID returns scopeDetails.activity.id, or "" when absent. Content
// card disqualification removes qualified propositions by this identifier.
func (p *Proposition) ActivityID() string {
	if p.ScopeDetails == nil {
		return ""
	}
	activity, _ := p.ScopeDetails["activity"].(map[string]any)
	id, _ := activity["id"].(string)
	return id
}

// FromMap decodes one raw payload fragment into a Proposition.
// Items missing an id or schema tag are skipped; an unrecognized schema tag
// is kept as SchemaUnknown so the classifier can drop it explicitly.
func FromMap(raw map[string]any) (*Proposition, error) {
	if raw == nil {
		return nil, ErrMalformedProposition
	}
	id, _ := raw[keyID].(string)
	scope, _ := raw[keyScope].(string)
	if id == "" || scope == "" {
		return nil, ErrMalformedProposition
	}

	p := &Proposition{
		UniqueID: id,
		Scope:    scope,
	}
	if details, ok := raw[keyScopeDetails].(map[string]any); ok {
		p.ScopeDetails = details
	}

	rawItems, _ := raw[keyItems].([]any)
	for _, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			continue
		}
		itemID, _ := m[keyID].(string)
		schemaTag, _ := m[keySchema].(string)
		if itemID == "" || schemaTag == "" {
			continue
		}
		item := &Item{
			ItemID: itemID,
			Schema: ParseSchemaType(schemaTag),
		}
		if data, ok := m[keyData].(map[string]any); ok {
			item.Data = data
		}
		p.Items = append(p.Items, item)
	}

	return p, nil
}

// FromMaps decodes a payload list, dropping nil and malformed fragments.
func FromMaps(raws []map[string]any) []*Proposition {
	out := make([]*Proposition, 0, len(raws))
	for _, raw := range raws {
		p, err := FromMap(raw)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ToMap re-encodes the proposition into the bus payload shape.
func (p *Proposition) ToMap() map[string]any {
	items := make([]any, 0, len(p.Items))
	for _, it := range p.Items {
		m := map[string]any{
			keyID:     it.ItemID,
			keySchema: it.Schema.String(),
		}
		if it.Data != nil {
			m[keyData] = it.Data
		}
		items = append(items, m)
	}
	out := map[string]any{
		keyID:    p.UniqueID,
		keyScope: p.Scope,
		keyItems: items,
	}
	if p.ScopeDetails != nil {
		out[keyScopeDetails] = p.ScopeDetails
	}
	return out
}

// Info is the attribution record cached per rule consequence so tracking
// events can be traced back to their owning proposition.
type Info struct {
	ID           string         `json:"id"`
	Scope        string         `json:"scope"`
	ScopeDetails map[string]any `json:"scopeDetails,omitempty"`
}

// InfoOf builds the attribution record for a proposition. Callers key the
// record by the rule consequence's id, not by UniqueID: tracking events
// arrive carrying the consequence id the rules engine matched.
func InfoOf(p *Proposition) Info {
	return Info{
		ID:           p.UniqueID,
		Scope:        p.Scope,
		ScopeDetails: p.ScopeDetails,
	}
}

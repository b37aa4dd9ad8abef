package proposition

import "encoding/json"

// SchemaType is the closed set of item schema tags.
//
// Ruleset items wrap a nested rule definition and are re-classified by the
// schema their consequence declares. Only one level of unwrap is supported:
// a ruleset consequence whose own schema would need expansion is not
// re-expanded.
type SchemaType int

const (
	SchemaUnknown SchemaType = iota
	SchemaInApp
	SchemaRuleset
	SchemaContentCard
	SchemaJSONContent
	SchemaHTMLContent
	SchemaEventHistoryOperation
	SchemaDefaultContent
)

const (
	schemaInAppStr               = "inapp"
	schemaRulesetStr             = "ruleset"
	schemaContentCardStr         = "content-card"
	schemaJSONContentStr         = "json-content"
	schemaHTMLContentStr         = "html-content"
	schemaEventHistoryOpStr      = "event-history-operation"
	schemaDefaultContentStr      = "default-content"
	schemaUnknownStr             = "unknown"
)

// ParseSchemaType maps a wire tag to its SchemaType.
// Unrecognized tags map to SchemaUnknown rather than failing; unknown
// schemas are an expected signal that an item is not yet actionable.
func ParseSchemaType(s string) SchemaType {
	switch s {
	case schemaInAppStr:
		return SchemaInApp
	case schemaRulesetStr:
		return SchemaRuleset
	case schemaContentCardStr:
		return SchemaContentCard
	case schemaJSONContentStr:
		return SchemaJSONContent
	case schemaHTMLContentStr:
		return SchemaHTMLContent
	case schemaEventHistoryOpStr:
		return SchemaEventHistoryOperation
	case schemaDefaultContentStr:
		return SchemaDefaultContent
	default:
		return SchemaUnknown
	}
}

func (t SchemaType) String() string {
	switch t {
	case SchemaInApp:
		return schemaInAppStr
	case SchemaRuleset:
		return schemaRulesetStr
	case SchemaContentCard:
		return schemaContentCardStr
	case SchemaJSONContent:
		return schemaJSONContentStr
	case SchemaHTMLContent:
		return schemaHTMLContentStr
	case SchemaEventHistoryOperation:
		return schemaEventHistoryOpStr
	case SchemaDefaultContent:
		return schemaDefaultContentStr
	default:
		return schemaUnknownStr
	}
}

// IsCodeBased reports whether the schema bypasses both rule engines and is
// cached as a raw payload instead.
func (t SchemaType) IsCodeBased() bool {
	return t == SchemaJSONContent || t == SchemaHTMLContent
}

// MarshalJSON implements json.Marshaler using the wire tag.
func (t SchemaType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler, mapping unknown tags to
// SchemaUnknown without error.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseSchemaType(s)
	return nil
}

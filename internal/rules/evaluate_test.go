package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/inappkit/internal/proposition"
)

func testOwner(t *testing.T, id string, rank int) *proposition.Proposition {
	t.Helper()
	p, err := proposition.FromMap(map[string]any{
		"id":           id,
		"scope":        "mobileapp://app/home",
		"scopeDetails": map[string]any{"rank": rank},
	})
	require.NoError(t, err)
	return p
}

func compileOne(t *testing.T, condition string) *CompiledRule {
	t.Helper()
	doc := &Document{
		Version: 1,
		Rules: []RuleDef{{
			Condition: condition,
			Consequences: []Consequence{{
				ID:     "c-1",
				Type:   "schema",
				Detail: map[string]any{"schema": "content-card"},
			}},
		}},
	}
	rules := CompileDocument(doc, testOwner(t, "p-1", 2))
	require.Len(t, rules, 1)
	return rules[0]
}

func TestCompiledRule_Matches(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		event     map[string]any
		want      bool
	}{
		{
			name:      "equality match",
			condition: `event.type == "trigger"`,
			event:     map[string]any{"type": "trigger"},
			want:      true,
		},
		{
			name:      "equality miss",
			condition: `event.type == "trigger"`,
			event:     map[string]any{"type": "dismiss"},
			want:      false,
		},
		{
			name:      "boolean logic",
			condition: `event.type == "view" && event.count > 2`,
			event:     map[string]any{"type": "view", "count": 3},
			want:      true,
		},
		{
			name:      "missing field is no match not error",
			condition: `event.nested.deep == "x"`,
			event:     map[string]any{"type": "view"},
			want:      false,
		},
		{
			name:      "nil event is no match",
			condition: `event.type == "trigger"`,
			event:     nil,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := compileOne(t, tt.condition)
			assert.Equal(t, tt.want, r.Matches(tt.event))
		})
	}
}

func TestCompileDocument_DropsBadRules(t *testing.T) {
	doc := &Document{
		Version: 1,
		Rules: []RuleDef{
			{Condition: `event.ok == true`, Consequences: []Consequence{{ID: "keep", Detail: map[string]any{"schema": "inapp"}}}},
			{Condition: `event.ok ==`, Consequences: []Consequence{{ID: "bad-syntax"}}},
			{Condition: `event.ok == true`}, // no consequences
		},
	}

	rules := CompileDocument(doc, testOwner(t, "p-1", 1))
	require.Len(t, rules, 1)
	assert.Equal(t, "keep", rules[0].Consequences[0].ID)
	assert.Equal(t, "p-1", rules[0].PropositionID)
	assert.Equal(t, "mobileapp://app/home", rules[0].Scope)
	assert.Equal(t, 1, rules[0].Rank)
}

func TestEvaluate_RuleOrderPreserved(t *testing.T) {
	var ruleset []*CompiledRule
	for _, id := range []string{"a", "b", "c"} {
		doc := &Document{Rules: []RuleDef{{
			Condition:    `event.go == true`,
			Consequences: []Consequence{{ID: id, Detail: map[string]any{"schema": "inapp"}}},
		}}}
		ruleset = append(ruleset, CompileDocument(doc, testOwner(t, "p-"+id, 1))...)
	}

	matches := Evaluate(ruleset, map[string]any{"go": true})
	require.Len(t, matches, 3)
	assert.Equal(t, "a", matches[0].Consequences[0].ID)
	assert.Equal(t, "b", matches[1].Consequences[0].ID)
	assert.Equal(t, "c", matches[2].Consequences[0].ID)

	assert.Empty(t, Evaluate(ruleset, map[string]any{"go": false}))
	assert.Empty(t, Evaluate(nil, map[string]any{"go": true}))
}

func TestPartitionConsequences(t *testing.T) {
	cons := []Consequence{
		{ID: "card", Detail: map[string]any{"schema": "content-card"}},
		{ID: "hist-1", Detail: map[string]any{"schema": "event-history-operation"}},
		{ID: "hist-2", Detail: map[string]any{"schema": "event-history-operation"}},
	}

	hist, direct := PartitionConsequences(cons)
	require.Len(t, hist, 2)
	require.Len(t, direct, 1)
	assert.Equal(t, "hist-1", hist[0].ID)
	assert.Equal(t, "hist-2", hist[1].ID)
	assert.Equal(t, "card", direct[0].ID)
}

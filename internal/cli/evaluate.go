package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerline/inappkit/internal/engine"
	"github.com/ledgerline/inappkit/internal/proposition"
	"github.com/ledgerline/inappkit/internal/rules"
)

// MatchSummary reports one matched rule.
type MatchSummary struct {
	PropositionID  string   `json:"propositionId"`
	Surface        string   `json:"surface"`
	ConsequenceIDs []string `json:"consequenceIds"`
}

// EvaluationReport is the offline evaluation result.
type EvaluationReport struct {
	Surfaces      []string       `json:"surfaces"`
	InAppRules    int            `json:"inAppRules"`
	CardRules     int            `json:"cardRules"`
	InAppMatches  []MatchSummary `json:"inAppMatches,omitempty"`
	CardMatches   []MatchSummary `json:"cardMatches,omitempty"`
	CodeBased     []string       `json:"codeBased,omitempty"`
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <payload.json> <event.json>",
		Short: "Classify a payload and evaluate an event against its rules offline",
		Long: `Parse a proposition payload file, install its rules the way the engine
would, and report which rules the given application event matches. No
cache or history state is touched; qualification transitions do not run.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runEvaluate(opts *RootOptions, payloadPath, eventPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var raws []map[string]any
	if err := readJSONFile(payloadPath, &raws); err != nil {
		formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, "payload not readable")
	}
	var event map[string]any
	if err := readJSONFile(eventPath, &event); err != nil {
		formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, "event not readable")
	}

	report := evaluateOffline(raws, event)
	formatter.VerboseLog("installed %d in-app and %d card rules across %d surfaces",
		report.InAppRules, report.CardRules, len(report.Surfaces))

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "surfaces: %d, in-app rules: %d, card rules: %d\n",
		len(report.Surfaces), report.InAppRules, report.CardRules)
	printMatches(cmd, "in-app matches", report.InAppMatches)
	printMatches(cmd, "card matches", report.CardMatches)
	return nil
}

func evaluateOffline(raws []map[string]any, event map[string]any) EvaluationReport {
	props := proposition.FromMaps(raws)

	bySurface := make(map[proposition.Surface][]*proposition.Proposition)
	var surfaces []proposition.Surface
	for _, p := range props {
		surface, err := proposition.SurfaceFromURI(p.Scope)
		if err != nil {
			continue
		}
		if _, seen := bySurface[surface]; !seen {
			surfaces = append(surfaces, surface)
		}
		bySurface[surface] = append(bySurface[surface], p)
	}

	parsed := engine.ParsePropositions(bySurface, surfaces)

	inApp := parsed.RulesFor(proposition.SchemaInApp, surfaces)
	cards := parsed.RulesFor(proposition.SchemaContentCard, surfaces)
	cards = append(cards, parsed.RulesFor(proposition.SchemaEventHistoryOperation, surfaces)...)

	report := EvaluationReport{
		InAppRules: len(inApp),
		CardRules:  len(cards),
	}
	for _, s := range surfaces {
		report.Surfaces = append(report.Surfaces, s.URI())
		for _, p := range parsed.PropositionsToCache[s] {
			report.CodeBased = append(report.CodeBased, p.UniqueID)
		}
	}
	report.InAppMatches = summarize(rules.Evaluate(inApp, event))
	report.CardMatches = summarize(rules.Evaluate(cards, event))
	return report
}

func summarize(matches []rules.Match) []MatchSummary {
	var out []MatchSummary
	for _, m := range matches {
		summary := MatchSummary{
			PropositionID: m.Rule.PropositionID,
			Surface:       m.Rule.Scope,
		}
		for _, c := range m.Consequences {
			summary.ConsequenceIDs = append(summary.ConsequenceIDs, c.ID)
		}
		out = append(out, summary)
	}
	return out
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}

func printMatches(cmd *cobra.Command, label string, matches []MatchSummary) {
	if len(matches) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: none\n", label)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", label)
	for _, m := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s) consequences=%v\n", m.PropositionID, m.Surface, m.ConsequenceIDs)
	}
}

package cli

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/spf13/cobra"
)

//go:embed payload.cue
var payloadSchema string

// ValidationIssue is one schema violation in a payload file.
type ValidationIssue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds the outcome of a payload validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <payload.json>",
		Short: "Validate a proposition payload file against the payload schema",
		Long: `Validate a JSON payload file (a list of proposition fragments) against
the CUE payload schema: surface URI shape, schema tags, item structure.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	raw, err := os.ReadFile(path)
	if err != nil {
		formatter.Error("E001", fmt.Sprintf("cannot read payload file: %v", err), nil)
		return NewExitError(ExitCommandError, "unreadable payload file")
	}

	result := validatePayload(path, raw)
	if !result.Valid {
		formatter.Error("E002", fmt.Sprintf("payload invalid: %d issue(s)", len(result.Issues)), result.Issues)
		return NewExitError(ExitFailure, "payload failed validation")
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success("payload valid")
}

func validatePayload(filename string, raw []byte) ValidationResult {
	cuectx := cuecontext.New()

	schema := cuectx.CompileString(payloadSchema)
	if err := schema.Err(); err != nil {
		return ValidationResult{Issues: []ValidationIssue{{Message: err.Error()}}}
	}
	payloadDef := schema.LookupPath(cue.ParsePath("#Payload"))

	expr, err := cuejson.Extract(filename, raw)
	if err != nil {
		return ValidationResult{Issues: []ValidationIssue{{Message: err.Error()}}}
	}
	value := cuectx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return ValidationResult{Issues: []ValidationIssue{{Message: err.Error()}}}
	}

	unified := payloadDef.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var issues []ValidationIssue
		for _, e := range cueerrors.Errors(err) {
			issues = append(issues, ValidationIssue{
				Path:    strings.Join(e.Path(), "."),
				Message: e.Error(),
			})
		}
		return ValidationResult{Issues: issues}
	}

	return ValidationResult{Valid: true}
}

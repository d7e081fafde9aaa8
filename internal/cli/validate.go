package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/statecell-io/statecell/def"
)

// ValidationIssue is one problem found while compiling definitions.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Stores []string          `json:"stores,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate store definitions",
		Long: `Compile every CUE store definition in a directory and report errors.

Each definition is compiled to its seed value. Errors carry a code and,
where CUE provides one, the file position of the offending field.

Exit codes:
  0 - All definitions valid
  1 - One or more definitions invalid
  2 - Command error (directory missing, no CUE files, load failure)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := def.LoadDir(defsDir, def.LoadModeCollectAll)

	// A nil result means the directory itself could not be loaded.
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *def.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		_ = formatter.Error(def.ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, defsDir)
	for _, spec := range loadResult.Specs {
		formatter.VerboseLog("Compiled store: %s", spec.Name)
	}

	if len(loadErrors) > 0 {
		issues := make([]ValidationIssue, 0, len(loadErrors))
		for _, err := range loadErrors {
			var loadErr *def.LoadError
			if errors.As(err, &loadErr) {
				issues = append(issues, ValidationIssue{
					Code:    loadErr.Code,
					Message: loadErr.Message,
					Line:    lineOf(loadErr.Pos),
				})
				continue
			}
			issues = append(issues, ValidationIssue{
				Code:    def.ErrCodeGeneric,
				Message: err.Error(),
			})
		}
		return outputValidationIssues(formatter, issues)
	}

	return outputValidateSuccess(formatter, loadResult)
}

// lineOf extracts the line number from a CUE position.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

func storeNames(specs []def.Spec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, loadResult *def.LoadResult) error {
	names := storeNames(loadResult.Specs)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Stores: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d store definition(s) valid\n", len(names))
	return nil
}

// outputValidationIssues outputs the collected validation errors.
func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

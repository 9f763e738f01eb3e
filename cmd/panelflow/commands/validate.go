package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/panelflow/panelflow/pkg/config"
	"github.com/panelflow/panelflow/pkg/policy"
)

// validateResult is the JSON shape of a validate run.
type validateResult struct {
	Valid     bool                     `json:"valid"`
	Files     []string                 `json:"files,omitempty"`
	Panels    int                      `json:"panels"`
	Behaviors []string                 `json:"behaviors,omitempty"`
	Errors    []config.ValidationError `json:"errors,omitempty"`
	Warnings  []config.ValidationError `json:"warnings,omitempty"`
	Notes     []config.ValidationError `json:"notes,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate the panel catalog",
		Long: `Validate catalog files and behavior scripts.

This command checks:
  - YAML and CUE syntax
  - Conformance to the panel schema
  - Role combinations, layers and policies
  - Duplicate panel paths
  - Starlark behavior scripts compile
  - Panels naming a behavior with no script (warning)
  - Built-in and policy.paths Rego policies

Paths default to catalog.paths from the config file.`,
		Example: `  # Validate the configured catalog
  panelflow validate

  # Validate a directory, treating warnings as errors
  panelflow validate --strict ./panels`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			paths := settings.Catalog.Paths
			if len(args) > 0 {
				paths = args
			}

			res, err := validateCatalog(cmd.Context(), settings, paths)
			if err != nil {
				return err
			}
			if strict && len(res.Warnings) > 0 {
				res.Valid = false
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				for _, e := range res.Errors {
					fmt.Fprintf(out, "error: %s\n", e)
				}
				for _, w := range res.Warnings {
					fmt.Fprintf(out, "warning: %s\n", w)
				}
				for _, n := range res.Notes {
					fmt.Fprintf(out, "note: %s\n", n)
				}
				if res.Valid {
					fmt.Fprintf(out, "Catalog valid: %d files, %d panels, %d behaviors\n",
						len(res.Files), res.Panels, len(res.Behaviors))
				}
			}

			if !res.Valid {
				return fmt.Errorf("catalog invalid: %d errors, %d warnings", len(res.Errors), len(res.Warnings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")

	return cmd
}

// validateCatalog loads paths into a fresh catalog, compiles its behaviors and
// runs the catalog policies. Only policy setup problems are returned as errors.
func validateCatalog(ctx context.Context, settings *config.Settings, paths []string) (*validateResult, error) {
	res := &validateResult{}
	catalog := config.NewCatalog(settings.Panels.PathFormat, zerolog.Nop())

	if err := catalog.LoadPaths(paths); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			res.Errors = verrs
		} else {
			res.Errors = []config.ValidationError{{Message: err.Error(), Severity: "error"}}
		}
		return res, nil
	}

	res.Files = catalog.Sources()
	res.Panels = len(catalog.Paths())

	behaviors := catalog.Behaviors()
	for name := range behaviors {
		res.Behaviors = append(res.Behaviors, name)
	}
	sort.Strings(res.Behaviors)

	if _, err := config.LoadScripts(behaviors); err != nil {
		res.Errors = append(res.Errors, config.ValidationError{Message: err.Error(), Severity: "error"})
	}

	templates := catalog.Templates()
	for _, t := range templates {
		if t.Behavior == "" {
			continue
		}
		if _, ok := behaviors[t.Behavior]; !ok {
			res.Warnings = append(res.Warnings, config.ValidationError{
				Path:     t.Path,
				Message:  fmt.Sprintf("behavior %q has no script in the catalog", t.Behavior),
				Severity: "warning",
			})
		}
	}

	eng, err := newPolicyEngine(ctx, settings, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	result, err := eng.Evaluate(ctx, templates, settings.EngineSettings())
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		res.Errors = append(res.Errors, config.ValidationError{Message: msg, Severity: "error"})
	}
	for _, v := range result.Violations {
		verr := config.ValidationError{
			Path:     v.Panel,
			Message:  fmt.Sprintf("%s (policy %s)", v.Message, v.Policy),
			Severity: string(v.Severity),
		}
		switch v.Severity {
		case policy.SeverityError:
			res.Errors = append(res.Errors, verr)
		case policy.SeverityWarning:
			res.Warnings = append(res.Warnings, verr)
		default:
			res.Notes = append(res.Notes, verr)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res, nil
}

package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/panelflow/panelflow/pkg/scenario"
)

func newScriptCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "script <file>",
		Short: "Replay a scenario against the catalog",
		Long: `Replay a YAML scenario of panel operations without a terminal UI.

Each step submits one operation, changes an input scheme owner, waits or
sleeps. Steps with an expect block check the visible stack, input scheme,
main screen, focus holder, mask target, live panel count and operation
state once every earlier operation has resolved.

The command fails when any expectation does not hold.`,
		Example: `  # Replay a scenario
  panelflow script scenarios/bag.yaml

  # Replay with JSON results and the journal enabled in panelflow.yaml
  panelflow script --json -c panelflow.yaml scenarios/bag.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}

			var logOutput io.Writer
			if quiet {
				logOutput = io.Discard
			}
			a, err := newApp(ctx, settings, logOutput)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					log.Error().Err(err).Msg("Shutdown failed")
				}
			}()

			report, err := scenario.NewRunner(a.sys, a.logger).Run(ctx, s)
			if err != nil {
				return fmt.Errorf("scenario %s aborted: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}

			if n := report.Failed(); n > 0 {
				return fmt.Errorf("%d expectation(s) failed", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "discard logs")

	return cmd
}

func printReport(w io.Writer, report *scenario.Report) {
	rows := make([][]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		op := s.Op
		if op == "" {
			op = "expect"
		}
		id := ""
		if s.OperationID != 0 {
			id = strconv.FormatUint(s.OperationID, 10)
		}
		result := "ok"
		if len(s.Failures) > 0 {
			result = strings.Join(s.Failures, "\n")
		} else if s.Error != "" {
			result = s.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index), op, s.Path, id, s.State, formatDuration(s.Duration), result,
		})
	}

	if report.Name != "" {
		fmt.Fprintf(w, "Scenario: %s\n", report.Name)
	}
	printTable(w, []string{"STEP", "OP", "PATH", "OP ID", "STATE", "DURATION", "RESULT"}, rows)
	fmt.Fprintf(w, "%d steps, %d failed expectations in %s\n", len(report.Steps), report.Failed(), formatDuration(report.Duration))
}

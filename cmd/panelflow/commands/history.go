package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/panelflow/panelflow/pkg/stores"
)

// dbPath overrides journal.path for history subcommands.
var dbPath string

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the operation journal",
		Long: `Inspect the SQLite operation journal written by run and script when
journal.enabled is set.

The journal keeps one session per process with every finished operation and
every published event.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "journal database (default journal.path)")

	cmd.AddCommand(newHistorySessionsCommand())
	cmd.AddCommand(newHistoryOpsCommand())
	cmd.AddCommand(newHistoryEventsCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

// openStore opens and migrates the journal database.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path := dbPath
	if path == "" {
		settings, err := loadSettings()
		if err != nil {
			return nil, err
		}
		path = settings.Journal.Path
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate journal %s: %w", path, err)
	}
	return store, nil
}

func newHistorySessionsCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List journal sessions, newest first",
		Example: `  # Show the last 10 sessions
  panelflow history sessions --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, sessions)
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				ended := "running"
				if s.EndedAt != nil {
					ended = formatTime(*s.EndedAt)
				}
				rows = append(rows, []string{s.ID, formatTime(s.StartedAt), ended})
			}
			printTable(out, []string{"SESSION", "STARTED", "ENDED"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of sessions to skip")

	return cmd
}

func newHistoryOpsCommand() *cobra.Command {
	var filter stores.OperationFilter

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List recorded operations",
		Example: `  # Failed operations in one session
  panelflow history ops --session 5b7f... --state failed

  # Every show of the bag panel
  panelflow history ops --type show --path ui/bag`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			ops, err := store.ListOperations(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, ops)
			}
			rows := make([][]string, 0, len(ops))
			for _, op := range ops {
				rows = append(rows, []string{
					strconv.FormatUint(op.OperationID, 10),
					op.Type,
					op.Path,
					op.State,
					formatTime(op.FinishedAt),
					formatDuration(op.Duration),
					deref(op.Error),
				})
			}
			printTable(out, []string{"ID", "TYPE", "PATH", "STATE", "FINISHED", "DURATION", "ERROR"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.SessionID, "session", "", "filter by session id")
	cmd.Flags().StringVar(&filter.Type, "type", "", "filter by operation type")
	cmd.Flags().StringVar(&filter.Path, "path", "", "filter by panel path")
	cmd.Flags().StringVar(&filter.State, "state", "", "filter by final state")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of records")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of records to skip")

	return cmd
}

func newHistoryEventsCommand() *cobra.Command {
	var filter stores.EventFilter

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded events",
		Example: `  # Input scheme changes
  panelflow history events --type input_scheme.changed

  # Warnings and errors only
  panelflow history events --level warn`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.ListEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, events)
			}
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					formatTime(e.Timestamp), e.Level, e.Type, e.Path, e.Message,
				})
			}
			printTable(out, []string{"TIME", "LEVEL", "TYPE", "PATH", "MESSAGE"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.SessionID, "session", "", "filter by session id")
	cmd.Flags().StringVar(&filter.Type, "type", "", "filter by event type")
	cmd.Flags().StringVar(&filter.Path, "path", "", "filter by panel path")
	cmd.Flags().StringVar(&filter.Level, "level", "", "filter by level")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of records")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of records to skip")

	return cmd
}

func newHistoryStatsCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, stats)
			}
			fmt.Fprintf(out, "Sessions:         %d\n", stats.Sessions)
			fmt.Fprintf(out, "Operations:       %d (%d failed)\n", stats.Operations, stats.Failed)
			fmt.Fprintf(out, "Events:           %d\n", stats.Events)
			fmt.Fprintf(out, "Average duration: %s\n", formatDuration(stats.AverageDuration))

			rows := make([][]string, 0, len(stats.ByType))
			for _, typ := range sortedKeys(stats.ByType) {
				rows = append(rows, []string{typ, strconv.Itoa(stats.ByType[typ])})
			}
			printTable(out, []string{"TYPE", "COUNT"}, rows)

			rows = rows[:0]
			for _, state := range sortedKeys(stats.ByState) {
				rows = append(rows, []string{state, strconv.Itoa(stats.ByState[state])})
			}
			printTable(out, []string{"STATE", "COUNT"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "limit to one session")

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var (
		before    string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete ended sessions and their records",
		Example: `  # Drop sessions that ended more than a week ago
  panelflow history prune --older-than 168h

  # Drop sessions that ended before a date
  panelflow history prune --before 2026-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := pruneCutoff(before, olderThan, time.Now())
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]any{"cutoff": cutoff, "deleted": n})
			}
			fmt.Fprintf(out, "Deleted %d rows from sessions ended before %s\n", n, formatTime(cutoff))
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "cutoff date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "cutoff age")
	cmd.MarkFlagsMutuallyExclusive("before", "older-than")
	cmd.MarkFlagsOneRequired("before", "older-than")

	return cmd
}

// pruneCutoff resolves the prune flags to an absolute time.
func pruneCutoff(before string, olderThan time.Duration, now time.Time) (time.Time, error) {
	if olderThan > 0 {
		return now.Add(-olderThan), nil
	}
	if t, err := time.Parse(time.RFC3339, before); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, before, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --before %q: expected YYYY-MM-DD or RFC 3339", before)
	}
	return t, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/panelflow/panelflow/pkg/engine"
	"github.com/panelflow/panelflow/pkg/remote"
)

func newServeCommand(version string) *cobra.Command {
	var (
		timeout     time.Duration
		eventTypes  []string
		eventLevels []string
		noEvents    bool
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drive the panel system over stdin/stdout",
		Long: `Serve the panel system to a host process over a line-delimited JSON
protocol on stdin and stdout. Logs go to stderr.

The server sends READY, then answers each CMD with DONE or ERROR and
forwards panel events as EVENT messages. When stdin closes, outstanding
operations are answered and EXIT is sent.

Commands:
  op            submit a panel operation and reply when it resolves
  input_scheme  set or clear an input scheme owner
  state         snapshot the panel stack
  invalidate    drop cached templates`,
		Example: `  # Show the bag and print the stack
  printf '%s\n%s\n' \
    '{"type":"CMD","data":{"id":"1","type":"op","params":{"op":"show","path":"ui/bag"}}}' \
    '{"type":"CMD","data":{"id":"2","type":"state"}}' | panelflow serve

  # Only forward main screen changes
  panelflow serve --events main.changed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			settings, err := loadSettings()
			if err != nil {
				return err
			}

			a, err := newApp(ctx, settings, os.Stderr)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					log.Error().Err(err).Msg("Shutdown failed")
				}
			}()

			if watch || settings.Catalog.Watch {
				if err := a.watchCatalog(ctx); err != nil {
					return err
				}
			}

			filter := engine.EventFilter{Levels: eventLevels}
			for _, t := range eventTypes {
				filter.Types = append(filter.Types, engine.EventType(t))
			}

			srv := remote.NewServer(a.sys, os.Stdin, os.Stdout,
				remote.WithVersion(version),
				remote.WithTimeout(timeout),
				remote.WithServerLogger(a.logger),
				remote.WithEventFilter(filter),
			)

			if !noEvents {
				id, err := a.tel.Bus.Subscribe(ctx, engine.EventFilter{}, srv.HandleEvent)
				if err != nil {
					return fmt.Errorf("failed to subscribe to events: %w", err)
				}
				defer func() { _ = a.tel.Bus.Unsubscribe(context.Background(), id) }()
			}

			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("remote control failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", remote.DefaultTimeout, "default wait for op commands")
	cmd.Flags().StringSliceVar(&eventTypes, "events", nil, "forward only these event types")
	cmd.Flags().StringSliceVar(&eventLevels, "event-level", nil, "forward only events at these levels")
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "do not forward events")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload the catalog when files change")

	return cmd
}

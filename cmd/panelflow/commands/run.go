package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/panelflow/panelflow/pkg/engine"
	"github.com/panelflow/panelflow/pkg/tui"
)

func newRunCommand() *cobra.Command {
	var (
		logFile       string
		noAnimation   bool
		animDuration  time.Duration
		watch         bool
		initialMain   string
		initialPanels []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the panel system in the terminal",
		Long: `Run the panel system interactively in the terminal.

Visible panels are drawn bottom to top with the mask shading everything
below its target. Keys are routed by the effective input scheme:

  Default scheme: number keys toggle panels, function keys switch main
                  screens, backspace returns to the previous main screen
  Everywhere:     esc closes the top pop, m clicks the mask, ctrl+c quits

Logs are discarded unless --log-file is given, since the terminal is in use.`,
		Example: `  # Run with the catalog from panelflow.yaml
  panelflow run

  # Start on a main screen with the HUD open and reload on catalog edits
  panelflow run --main scenes/town --show ui/hud --watch

  # Keep a debug log while running
  panelflow run --log-level debug --log-file panelflow.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			settings, err := loadSettings()
			if err != nil {
				return err
			}

			var logOutput io.Writer = io.Discard
			if logFile != "" {
				settings.Telemetry.Logging.Output = logFile
				logOutput = nil
			}

			screen := tui.NewScreen(nil)
			input := tui.NewInputRouter(settings.Panels.DefaultInputScheme, zerolog.Nop())
			opts := []engine.Option{
				engine.WithContainerFactory(screen),
				engine.WithLoadingHandler(tui.NewLoadingOverlay(screen)),
				engine.WithInputSchemeHandler(input),
			}
			if !noAnimation {
				opts = append(opts, engine.WithAnimator(tui.NewTickAnimator(screen, animDuration, 0)))
			}

			a, err := newApp(ctx, settings, logOutput, opts...)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					log.Error().Err(err).Msg("Shutdown failed")
				}
			}()
			input.SetLogger(a.logger)

			if watch || settings.Catalog.Watch {
				if err := a.watchCatalog(ctx); err != nil {
					return err
				}
			}

			if initialMain != "" {
				a.sys.ShowMainUI(initialMain, false, nil)
			}
			for _, path := range initialPanels {
				a.sys.Show(path, false, nil)
			}

			keys := tui.DefaultKeyMap(a.sys.Settings(), a.catalog.Templates())
			m := tui.NewModel(a.sys, screen, input, keys,
				tui.WithAnimations(!noAnimation),
				tui.WithModelLogger(a.logger),
			)
			if err := tui.Run(ctx, m, tea.WithOutput(os.Stdout)); err != nil {
				return fmt.Errorf("terminal UI failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	cmd.Flags().BoolVar(&noAnimation, "no-animation", false, "disable show/hide animations")
	cmd.Flags().DurationVar(&animDuration, "animation", tui.DefaultAnimationDuration, "show/hide animation duration")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload the catalog when files change")
	cmd.Flags().StringVar(&initialMain, "main", "", "main screen to show on start")
	cmd.Flags().StringSliceVar(&initialPanels, "show", nil, "panels to show on start")

	return cmd
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/config"
	"github.com/panelflow/panelflow/pkg/engine"
	"github.com/panelflow/panelflow/pkg/policy"
	"github.com/panelflow/panelflow/pkg/stores"
	"github.com/panelflow/panelflow/pkg/telemetry"
)

// shutdownTimeout bounds the drain of the system, journal and telemetry on exit.
const shutdownTimeout = 10 * time.Second

// app is a fully wired panel system host.
type app struct {
	settings *config.Settings
	catalog  *config.Catalog
	policies *policy.Engine
	tel      *telemetry.Telemetry
	store    *stores.SQLiteStore
	journal  *stores.Journal
	sys      *engine.System
	logger   zerolog.Logger
}

// loadSettings reads the config file and applies global flag overrides.
func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.Telemetry.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		settings.Telemetry.Metrics.ListenAddress = metricsAddr
	}
	return settings, nil
}

// newApp builds the catalog, telemetry, journal and system. When logOutput is
// not nil it replaces the configured log destination. opts are appended to the
// engine options.
func newApp(ctx context.Context, settings *config.Settings, logOutput io.Writer, opts ...engine.Option) (_ *app, err error) {
	var logger *telemetry.Logger
	if logOutput != nil {
		logger = telemetry.NewLoggerWithWriter(settings.Telemetry.Logging, logOutput)
	} else if logger, err = telemetry.NewLogger(settings.Telemetry.Logging); err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{settings: settings, logger: logger.Zerolog()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.tel, err = telemetry.NewTelemetryWithLogger(&settings.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry: %w", err)
	}

	a.catalog = config.NewCatalog(settings.Panels.PathFormat, a.logger)
	if err := a.catalog.LoadPaths(settings.Catalog.Paths); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	a.policies, err = newPolicyEngine(ctx, settings, a.logger)
	if err != nil {
		return nil, err
	}
	if err := checkCatalog(ctx, a.policies, a.catalog.Templates(), settings.EngineSettings(), a.logger); err != nil {
		return nil, err
	}

	engineOpts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithSettings(settings.EngineSettings()),
		engine.WithPublisher(a.tel.Bus),
		engine.WithObserver(a.tel),
	}

	if settings.Journal.Enabled {
		if err := a.openJournal(ctx); err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithObserver(a.journal))
	}

	a.sys = engine.New(a.catalog, append(engineOpts, opts...)...)
	if err := a.registerBehaviors(); err != nil {
		return nil, err
	}
	if err := a.sys.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize panel system: %w", err)
	}

	if settings.Telemetry.Metrics.Enabled && settings.Telemetry.Metrics.ListenAddress != "" {
		a.tel.StartMetricsServer(ctx, settings.Telemetry.Metrics.ListenAddress)
	}

	a.logger.Info().
		Int("templates", len(a.catalog.Paths())).
		Bool("journal", a.journal != nil).
		Msg("Panel host ready")
	return a, nil
}

func (a *app) openJournal(ctx context.Context) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: a.settings.Journal.Path})
	if err != nil {
		return err
	}
	a.store = store
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}

	a.journal, err = stores.NewJournal(ctx, store, a.logger, a.settings.Telemetry.Events.BufferSize)
	if err != nil {
		return fmt.Errorf("failed to start journal session: %w", err)
	}
	if _, err := a.tel.Bus.Subscribe(ctx, engine.EventFilter{}, a.journal.HandleEvent); err != nil {
		return fmt.Errorf("failed to subscribe journal: %w", err)
	}
	return nil
}

// registerBehaviors compiles the catalog's Starlark behaviors and registers
// them on the system, replacing earlier registrations with the same name.
func (a *app) registerBehaviors() error {
	scripts, err := config.LoadScripts(a.catalog.Behaviors(), config.WithScriptLogger(a.logger))
	if err != nil {
		return err
	}
	for name, s := range scripts {
		a.sys.RegisterBehavior(name, s.Factory(a.sys))
	}
	return nil
}

// watchCatalog reloads templates and behaviors when catalog files change.
// Policy violations are logged; blocking ones do not stop the reload.
func (a *app) watchCatalog(ctx context.Context) error {
	return a.catalog.Watch(ctx, a.settings.Catalog.Paths, func(changed []string) error {
		if err := checkCatalog(ctx, a.policies, a.catalog.Templates(), a.settings.EngineSettings(), a.logger); err != nil {
			a.logger.Warn().Err(err).Msg("Reloaded catalog has policy violations")
		}
		if err := a.registerBehaviors(); err != nil {
			return err
		}
		a.sys.InvalidateTemplates("")
		a.logger.Info().Strs("files", changed).Msg("Catalog reloaded")
		return nil
	})
}

// close shuts everything down in dependency order. It is safe on a partially
// built app.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.sys != nil {
		errs = append(errs, a.sys.Shutdown(ctx))
	}
	if a.tel != nil {
		errs = append(errs, a.tel.Bus.Flush(ctx))
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/config"
	"github.com/panelflow/panelflow/pkg/engine"
	"github.com/panelflow/panelflow/pkg/policy"
)

// newPolicyEngine builds the policy engine with the configured custom
// policies loaded and disabled policies turned off.
func newPolicyEngine(ctx context.Context, settings *config.Settings, logger zerolog.Logger) (*policy.Engine, error) {
	eng, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if err := eng.LoadPolicies(ctx, settings.Policy.Paths); err != nil {
		return nil, err
	}
	for _, name := range settings.Policy.Disabled {
		if err := eng.DisablePolicy(name); err != nil {
			return nil, fmt.Errorf("policy.disabled: %w", err)
		}
	}
	return eng, nil
}

// checkCatalog evaluates the catalog and logs every violation. It fails when
// a violation is blocking.
func checkCatalog(ctx context.Context, eng *policy.Engine, templates []engine.Template, settings engine.Settings, logger zerolog.Logger) error {
	result, err := eng.Evaluate(ctx, templates, settings)
	if err != nil {
		return fmt.Errorf("failed to evaluate catalog policies: %w", err)
	}

	for _, v := range result.Violations {
		ev := logger.Warn()
		switch v.Severity {
		case policy.SeverityError:
			ev = logger.Error()
		case policy.SeverityInfo:
			ev = logger.Info()
		}
		ev.Str("policy", v.Policy).Str("panel", v.Panel).Msg(v.Message)
	}
	for _, msg := range result.Errors {
		logger.Error().Msg(msg)
	}

	if !result.Allowed {
		return fmt.Errorf("catalog violates policy: %d violations", len(result.Violations))
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/panelflow/panelflow/pkg/telemetry"
)

// EnvPrefix is the prefix for environment overrides (PANELFLOW_PANELS_MASK_COLOR, ...).
const EnvPrefix = "PANELFLOW"

var maskColorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// NewValidator returns a validator with the panelflow-specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"yaml", "mapstructure"} {
			if name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]; name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("maskcolor", func(fl validator.FieldLevel) bool {
		return maskColorPattern.MatchString(fl.Field().String())
	})
	return v
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	return &Settings{
		Panels: PanelSettings{
			DefaultInputScheme:        "Game",
			PopInputScheme:            "UI",
			MaskColor:                 "#000000F2",
			MaskClickable:             true,
			BlockInputDuringAnimation: true,
			PathFormat:                "ui/%s",
		},
		Catalog: CatalogSettings{
			Paths: []string{"panels"},
		},
		Journal: JournalSettings{
			Path: "panelflow.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// LoadSettings reads settings from the optional file at path, then applies
// PANELFLOW_ environment overrides. An empty path searches the working
// directory for panelflow.{yaml,yml,json,toml}.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v, DefaultSettings())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("panelflow")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks struct tags and the telemetry sub-config.
func (s *Settings) Validate() error {
	if err := NewValidator().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := s.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry settings: %w", err)
	}
	return nil
}

// setDefaults registers every default so env overrides apply even without a file.
func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("panels.default_input_scheme", d.Panels.DefaultInputScheme)
	v.SetDefault("panels.pop_input_scheme", d.Panels.PopInputScheme)
	v.SetDefault("panels.mask_color", d.Panels.MaskColor)
	v.SetDefault("panels.mask_clickable", d.Panels.MaskClickable)
	v.SetDefault("panels.block_input_during_animation", d.Panels.BlockInputDuringAnimation)
	v.SetDefault("panels.path_format", d.Panels.PathFormat)

	v.SetDefault("catalog.paths", d.Catalog.Paths)
	v.SetDefault("catalog.watch", d.Catalog.Watch)

	v.SetDefault("policy.paths", d.Policy.Paths)
	v.SetDefault("policy.disabled", d.Policy.Disabled)

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)

	t := d.Telemetry
	v.SetDefault("telemetry.service_name", t.ServiceName)
	v.SetDefault("telemetry.service_version", t.ServiceVersion)
	v.SetDefault("telemetry.environment", t.Environment)
	v.SetDefault("telemetry.logging.level", t.Logging.Level)
	v.SetDefault("telemetry.logging.format", t.Logging.Format)
	v.SetDefault("telemetry.logging.output", t.Logging.Output)
	v.SetDefault("telemetry.logging.enable_caller", t.Logging.EnableCaller)
	v.SetDefault("telemetry.logging.time_format", t.Logging.TimeFormat)
	v.SetDefault("telemetry.tracing.enabled", t.Tracing.Enabled)
	v.SetDefault("telemetry.tracing.exporter", t.Tracing.Exporter)
	v.SetDefault("telemetry.tracing.endpoint", t.Tracing.Endpoint)
	v.SetDefault("telemetry.tracing.sampling_rate", t.Tracing.SamplingRate)
	v.SetDefault("telemetry.tracing.export_timeout", t.Tracing.ExportTimeout)
	v.SetDefault("telemetry.tracing.insecure", t.Tracing.Insecure)
	v.SetDefault("telemetry.metrics.enabled", t.Metrics.Enabled)
	v.SetDefault("telemetry.metrics.listen_address", t.Metrics.ListenAddress)
	v.SetDefault("telemetry.metrics.path", t.Metrics.Path)
	v.SetDefault("telemetry.metrics.namespace", t.Metrics.Namespace)
	v.SetDefault("telemetry.metrics.buckets", t.Metrics.Buckets)
	v.SetDefault("telemetry.events.buffer_size", t.Events.BufferSize)
	v.SetDefault("telemetry.events.enable_async", t.Events.EnableAsync)
}

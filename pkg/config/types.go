package config

import (
	"fmt"
	"strings"

	"github.com/panelflow/panelflow/pkg/engine"
	"github.com/panelflow/panelflow/pkg/telemetry"
)

// Settings is the top-level panelflow configuration.
type Settings struct {
	// Panels holds the panel system defaults.
	Panels PanelSettings `mapstructure:"panels"`

	// Catalog configures where panel templates are loaded from.
	Catalog CatalogSettings `mapstructure:"catalog"`

	// Policy configures the Rego catalog policies.
	Policy PolicySettings `mapstructure:"policy"`

	// Journal configures the operation journal.
	Journal JournalSettings `mapstructure:"journal"`

	// Telemetry configures logging, tracing, metrics, and the event bus.
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// PanelSettings are the system-wide panel defaults.
type PanelSettings struct {
	// DefaultInputScheme is effective when no panel requests a scheme.
	DefaultInputScheme string `mapstructure:"default_input_scheme" validate:"required"`

	// PopInputScheme is requested by focused pop panels without their own scheme.
	PopInputScheme string `mapstructure:"pop_input_scheme" validate:"required"`

	// MaskColor is the default mask color (#RRGGBB or #RRGGBBAA).
	MaskColor string `mapstructure:"mask_color" validate:"required,maskcolor"`

	// MaskClickable enables mask-click handling.
	MaskClickable bool `mapstructure:"mask_clickable"`

	// BlockInputDuringAnimation is reported with animation events.
	BlockInputDuringAnimation bool `mapstructure:"block_input_during_animation"`

	// PathFormat derives a panel path from a catalog entry name. It must contain %s.
	PathFormat string `mapstructure:"path_format" validate:"required,contains=%s"`
}

// CatalogSettings configures catalog loading.
type CatalogSettings struct {
	// Paths lists catalog files or directories.
	Paths []string `mapstructure:"paths" validate:"dive,required"`

	// Watch reloads templates when catalog files change.
	Watch bool `mapstructure:"watch"`
}

// PolicySettings configures catalog policy checks.
type PolicySettings struct {
	// Paths lists .rego or .json policy files or directories added to the built-ins.
	Paths []string `mapstructure:"paths" validate:"dive,required"`

	// Disabled names policies to skip.
	Disabled []string `mapstructure:"disabled"`
}

// JournalSettings configures the SQLite operation journal.
type JournalSettings struct {
	// Enabled turns the journal on.
	Enabled bool `mapstructure:"enabled"`

	// Path is the database file.
	Path string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// EngineSettings converts the panel settings for engine.WithSettings.
func (s *Settings) EngineSettings() engine.Settings {
	return engine.Settings{
		DefaultInputScheme:        s.Panels.DefaultInputScheme,
		PopInputScheme:            s.Panels.PopInputScheme,
		MaskColor:                 s.Panels.MaskColor,
		MaskClickable:             s.Panels.MaskClickable,
		BlockInputDuringAnimation: s.Panels.BlockInputDuringAnimation,
	}
}

// PanelSpec is one catalog entry as written in YAML or CUE.
type PanelSpec struct {
	Path        string                `json:"path,omitempty" yaml:"path,omitempty"`
	Layer       *int                  `json:"layer,omitempty" yaml:"layer,omitempty" validate:"omitempty,min=0,max=1000"`
	Roles       []string              `json:"roles,omitempty" yaml:"roles,omitempty" validate:"dive,oneof=main loadable focusable pop"`
	UseMask     *bool                 `json:"use_mask,omitempty" yaml:"use_mask,omitempty"`
	MaskColor   string                `json:"mask_color,omitempty" yaml:"mask_color,omitempty" validate:"omitempty,maskcolor"`
	Behavior    string                `json:"behavior,omitempty" yaml:"behavior,omitempty"`
	MainChange  string                `json:"main_change,omitempty" yaml:"main_change,omitempty" validate:"omitempty,oneof=none hide close"`
	MaskClick   string                `json:"mask_click,omitempty" yaml:"mask_click,omitempty" validate:"omitempty,oneof=none hide close direct_hide direct_close"`
	TopPop      string                `json:"top_pop,omitempty" yaml:"top_pop,omitempty" validate:"omitempty,oneof=none ignore hide close"`
	AutoClose   map[string]string     `json:"auto_close,omitempty" yaml:"auto_close,omitempty" validate:"dive,keys,oneof=mask_click pop_auto_close main_ui_switch destroy_all path_superseded,endkeys,oneof=none hide close"`
	Loading     *engine.LoadingConfig `json:"loading,omitempty" yaml:"loading,omitempty"`
	InputScheme string                `json:"input_scheme,omitempty" yaml:"input_scheme,omitempty"`
	BlockInput  *bool                 `json:"block_input,omitempty" yaml:"block_input,omitempty"`
}

// CatalogFile is the document shape of a catalog file.
type CatalogFile struct {
	// Panels maps entry names to specs. The path defaults to PathFormat applied to the name.
	Panels map[string]PanelSpec `json:"panels" yaml:"panels"`

	// Behaviors maps behavior names to Starlark script files, relative to the catalog file.
	Behaviors map[string]string `json:"behaviors,omitempty" yaml:"behaviors,omitempty"`
}

// Template converts the spec into an engine template.
func (s PanelSpec) Template(path string) (*engine.Template, error) {
	var roles engine.Role
	for _, name := range s.Roles {
		r, err := engine.ParseRole(name)
		if err != nil {
			return nil, err
		}
		roles |= r
	}

	tmpl := &engine.Template{
		Path:        path,
		Layer:       10,
		Roles:       roles,
		UseMask:     true,
		MaskColor:   s.MaskColor,
		Behavior:    s.Behavior,
		MainChange:  engine.MainChangeBehavior(s.MainChange),
		MaskClick:   engine.MaskClickOperation(s.MaskClick),
		TopPop:      engine.TopPopPolicy(s.TopPop),
		Loading:     s.Loading,
		InputScheme: s.InputScheme,
		BlockInput:  s.BlockInput,
	}
	if s.Layer != nil {
		tmpl.Layer = *s.Layer
	}
	if s.UseMask != nil {
		tmpl.UseMask = *s.UseMask
	}
	if len(s.AutoClose) > 0 {
		tmpl.AutoClose = make(map[engine.AutoCloseReason]engine.AutoCloseAction, len(s.AutoClose))
		for reason, action := range s.AutoClose {
			tmpl.AutoClose[engine.AutoCloseReason(reason)] = engine.AutoCloseAction(action)
		}
	}
	if roles.Has(engine.RoleLoadable) && !roles.Has(engine.RoleMainUI) {
		return nil, fmt.Errorf("loadable role requires the main role")
	}
	return tmpl, nil
}

// ValidationError represents a catalog problem with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the entry or field the error refers to (e.g., "panels.bag.layer").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning).
	Severity string `json:"severity"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a catalog has one or more errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].String()
	}
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e.String())
	}
	return fmt.Sprintf("%d catalog errors:\n  %s", len(errs), strings.Join(lines, "\n  "))
}

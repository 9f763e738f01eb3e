package policy

import (
	"strings"
	"time"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for catalog smells that still load.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that fail validation.
	SeverityError Severity = "error"
)

// Blocking reports whether the severity fails validation.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its deny set yields violations.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Panel is the panel path that violated the policy, empty for catalog-wide rules.
	Panel string `json:"panel,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	// Panel is set for per-panel evaluation.
	Panel *PanelDoc `json:"panel,omitempty"`

	// Catalog holds every panel, for rules that compare panels.
	Catalog []PanelDoc `json:"catalog"`

	// Settings are the system-wide defaults.
	Settings *SettingsDoc `json:"settings,omitempty"`
}

// PanelDoc is the policy view of a template.
type PanelDoc struct {
	Path        string            `json:"path"`
	Layer       int               `json:"layer"`
	Roles       []string          `json:"roles"`
	UseMask     bool              `json:"use_mask"`
	MaskColor   string            `json:"mask_color,omitempty"`
	Behavior    string            `json:"behavior,omitempty"`
	MainChange  string            `json:"main_change,omitempty"`
	MaskClick   string            `json:"mask_click,omitempty"`
	TopPop      string            `json:"top_pop,omitempty"`
	AutoClose   map[string]string `json:"auto_close,omitempty"`
	InputScheme string            `json:"input_scheme,omitempty"`
	Loading     bool              `json:"loading"`
}

// SettingsDoc is the policy view of engine.Settings.
type SettingsDoc struct {
	DefaultInputScheme string `json:"default_input_scheme"`
	PopInputScheme     string `json:"pop_input_scheme"`
	MaskColor          string `json:"mask_color"`
	MaskClickable      bool   `json:"mask_clickable"`
}

// NewPanelDoc converts a template for policy input.
func NewPanelDoc(t *engine.Template) PanelDoc {
	doc := PanelDoc{
		Path:        t.Path,
		Layer:       t.Layer,
		Roles:       []string{},
		UseMask:     t.UseMask,
		MaskColor:   t.MaskColor,
		Behavior:    t.Behavior,
		MainChange:  string(t.MainChange),
		MaskClick:   string(t.MaskClick),
		TopPop:      string(t.TopPop),
		InputScheme: t.InputScheme,
		Loading:     t.Loading != nil,
	}
	if t.Roles != 0 {
		doc.Roles = strings.Split(t.Roles.String(), "|")
	}
	if len(t.AutoClose) > 0 {
		doc.AutoClose = make(map[string]string, len(t.AutoClose))
		for reason, action := range t.AutoClose {
			doc.AutoClose[string(reason)] = string(action)
		}
	}
	return doc
}

// NewSettingsDoc converts engine settings for policy input.
func NewSettingsDoc(s engine.Settings) *SettingsDoc {
	return &SettingsDoc{
		DefaultInputScheme: s.DefaultInputScheme,
		PopInputScheme:     s.PopInputScheme,
		MaskColor:          s.MaskColor,
		MaskClickable:      s.MaskClickable,
	}
}

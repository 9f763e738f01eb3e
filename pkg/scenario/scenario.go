package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Step ops beyond the engine operation types.
const (
	OpSetInputScheme = "set_input_scheme"
	OpWait           = "wait"
	OpSleep          = "sleep"
)

// Scenario is a scripted sequence of panel operations with expectations.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`

	// Timeout bounds each wait. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
}

// Step is one scenario entry. A step with only Expect checks state without
// submitting anything.
type Step struct {
	Op       string         `yaml:"op,omitempty"`
	Path     string         `yaml:"path,omitempty"`
	Anim     *bool          `yaml:"anim,omitempty"`
	Force    bool           `yaml:"force,omitempty"`
	UserData map[string]any `yaml:"user_data,omitempty"`

	// Owner and Scheme apply to set_input_scheme. An empty scheme removes
	// the owner's entry.
	Owner  string `yaml:"scheme_owner,omitempty" validate:"required_if=Op set_input_scheme"`
	Scheme string `yaml:"scheme,omitempty"`

	// Duration applies to sleep.
	Duration time.Duration `yaml:"duration,omitempty" validate:"gte=0"`

	Expect *Expectation `yaml:"expect,omitempty"`
}

// Expectation is checked after every earlier operation has resolved.
// Unset fields are not checked.
type Expectation struct {
	// Visible lists the visible panel paths, topmost first.
	Visible []string `yaml:"visible,omitempty"`
	Scheme  string   `yaml:"scheme,omitempty"`
	Main    *string  `yaml:"main,omitempty"`
	Focus   *string  `yaml:"focus,omitempty"`
	Mask    *string  `yaml:"mask,omitempty"`
	State   string   `yaml:"state,omitempty" validate:"omitempty,oneof=completed failed canceled"`
	Live    *int     `yaml:"live,omitempty" validate:"omitempty,gte=0"`
}

// useAnimation defaults to false so replays are fast.
func (s Step) useAnimation() bool {
	return s.Anim != nil && *s.Anim
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks struct tags and step ops.
func (s *Scenario) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	for i, step := range s.Steps {
		switch step.Op {
		case "":
			if step.Expect == nil {
				return fmt.Errorf("step %d: op or expect is required", i+1)
			}
		case OpSetInputScheme, OpWait, OpSleep:
		default:
			if err := engine.OperationType(step.Op).Validate(); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
	}
	return nil
}

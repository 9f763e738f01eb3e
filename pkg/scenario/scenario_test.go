package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

type mapLoader map[string]*engine.Template

func (m mapLoader) Load(path string) (*engine.Template, error) {
	if t, ok := m[path]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", path, engine.ErrTemplateNotFound)
}

func newTestSystem(t *testing.T) *engine.System {
	t.Helper()

	sys := engine.New(mapLoader{
		"ui/hud":      {Path: "ui/hud", Layer: 0},
		"ui/bag":      {Path: "ui/bag", Layer: 10, UseMask: true, Roles: engine.RolePop | engine.RoleFocusable},
		"scenes/town": {Path: "scenes/town", Layer: 0, Roles: engine.RoleMainUI},
		"scenes/shop": {Path: "scenes/shop", Layer: 0, Roles: engine.RoleMainUI},
	}, engine.WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := sys.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
}

func run(t *testing.T, yaml string) *Report {
	t.Helper()

	s, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := NewRunner(newTestSystem(t), zerolog.Nop()).Run(ctx, s)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return report
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(`
name: basic
timeout: 2s
steps:
  - op: show
    path: ui/hud
    anim: true
  - op: set_input_scheme
    scheme_owner: cutscene
    scheme: Cinematic
  - op: sleep
    duration: 10ms
  - expect:
      visible: [ui/hud]
      live: 1
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if s.Name != "basic" {
		t.Errorf("Expected name basic, got %s", s.Name)
	}
	if s.Timeout != 2*time.Second {
		t.Errorf("Expected timeout 2s, got %v", s.Timeout)
	}
	if len(s.Steps) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(s.Steps))
	}
	if !s.Steps[0].useAnimation() {
		t.Error("Expected first step to animate")
	}
	if s.Steps[1].useAnimation() {
		t.Error("Expected animation to default to off")
	}
	if s.Steps[2].Duration != 10*time.Millisecond {
		t.Errorf("Expected sleep of 10ms, got %v", s.Steps[2].Duration)
	}
	if s.Steps[3].Expect == nil || *s.Steps[3].Expect.Live != 1 {
		t.Error("Expected live expectation of 1")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no steps",
			yaml:    "name: empty\n",
			wantErr: "invalid scenario",
		},
		{
			name:    "unknown field",
			yaml:    "steps:\n  - op: show\n    path: a\n    colour: red\n",
			wantErr: "field colour not found",
		},
		{
			name:    "unknown op",
			yaml:    "steps:\n  - op: explode\n    path: a\n",
			wantErr: "step 1",
		},
		{
			name:    "empty step",
			yaml:    "steps:\n  - path: a\n",
			wantErr: "op or expect is required",
		},
		{
			name:    "scheme without owner",
			yaml:    "steps:\n  - op: set_input_scheme\n    scheme: UI\n",
			wantErr: "Owner",
		},
		{
			name:    "bad state",
			yaml:    "steps:\n  - op: show\n    path: a\n    expect:\n      state: done\n",
			wantErr: "State",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	if err := os.WriteFile(path, []byte("steps:\n  - op: wait\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Steps[0].Op != OpWait {
		t.Errorf("Expected wait step, got %s", s.Steps[0].Op)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRunPopOverMain(t *testing.T) {
	report := run(t, `
name: bag over town
steps:
  - op: show_main
    path: scenes/town
  - op: show
    path: ui/bag
    expect:
      visible: [ui/bag, scenes/town]
      scheme: UI
      main: scenes/town
      focus: ui/bag
      mask: ui/bag
      state: completed
  - op: auto_close_top
    expect:
      visible: [scenes/town]
      scheme: Game
      focus: ""
      mask: ""
      live: 2
`)

	if report.Failed() != 0 {
		for _, s := range report.Steps {
			for _, f := range s.Failures {
				t.Errorf("step %d: %s", s.Index, f)
			}
		}
	}
	if len(report.Steps) != 3 {
		t.Fatalf("Expected 3 step results, got %d", len(report.Steps))
	}
	for _, s := range report.Steps {
		if s.State != string(engine.OperationStateCompleted) {
			t.Errorf("Expected step %d completed, got %q", s.Index, s.State)
		}
		if s.OperationID == 0 {
			t.Errorf("Expected step %d to carry an operation id", s.Index)
		}
	}
}

func TestRunMainHistory(t *testing.T) {
	report := run(t, `
steps:
  - op: show_main
    path: scenes/town
  - op: show_main
    path: scenes/shop
    expect:
      main: scenes/shop
      visible: [scenes/shop]
  - op: go_back_main
    expect:
      main: scenes/town
      visible: [scenes/town]
`)

	if n := report.Failed(); n != 0 {
		t.Errorf("Expected no failures, got %d: %v %v", n, report.Steps[1].Failures, report.Steps[2].Failures)
	}
}

func TestRunInputSchemeOwners(t *testing.T) {
	report := run(t, `
steps:
  - op: set_input_scheme
    scheme_owner: cutscene
    scheme: Cinematic
    expect:
      scheme: Cinematic
  - op: set_input_scheme
    scheme_owner: cutscene
    expect:
      scheme: Game
`)

	if n := report.Failed(); n != 0 {
		t.Errorf("Expected no failures, got %d: %v %v", n, report.Steps[0].Failures, report.Steps[1].Failures)
	}
}

func TestRunReportsMismatches(t *testing.T) {
	report := run(t, `
steps:
  - op: show
    path: ui/hud
    expect:
      visible: [ui/bag]
      scheme: UI
      state: failed
      live: 3
`)

	failures := report.Steps[0].Failures
	if len(failures) != 4 {
		t.Fatalf("Expected 4 failures, got %d: %v", len(failures), failures)
	}
	for i, prefix := range []string{"visible:", "scheme:", "live:", "state:"} {
		if !strings.HasPrefix(failures[i], prefix) {
			t.Errorf("Expected failure %d to start with %q, got %q", i, prefix, failures[i])
		}
	}
	if report.Failed() != 4 {
		t.Errorf("Expected report to count 4 failures, got %d", report.Failed())
	}
}

func TestRunStateWithoutOperation(t *testing.T) {
	report := run(t, `
steps:
  - expect:
      state: completed
`)

	if report.Failed() != 1 {
		t.Fatalf("Expected 1 failure, got %d", report.Failed())
	}
	if got := report.Steps[0].Failures[0]; got != "state: step has no operation" {
		t.Errorf("Unexpected failure: %s", got)
	}
}

func TestRunCanceled(t *testing.T) {
	s, err := Parse([]byte("steps:\n  - op: sleep\n    duration: 1h\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewRunner(newTestSystem(t), zerolog.Nop()).Run(ctx, s)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

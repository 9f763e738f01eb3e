package config

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

const dialogScript = `
def on_create(panel):
    log("created " + panel.path)

def on_shown(panel):
    set_input_scheme("Dialog")
    if panel.user_data == "open-hud":
        submit("show", "ui/hud", anim=False)

def auto_close(panel, reason):
    if reason == "mask_click":
        return "hide"
    return None
`

func newScriptSystem(t *testing.T, script *Script) (*engine.System, context.Context) {
	t.Helper()

	c := NewCatalog("ui/%s", zerolog.Nop())
	c.Add(&engine.Template{Path: "ui/dialog", Layer: 20, UseMask: true, Behavior: "dialog"})
	c.Add(&engine.Template{Path: "ui/hud"})

	sys := engine.New(c)
	sys.RegisterBehavior("dialog", script.Factory(sys))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := sys.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys, ctx
}

func TestScriptHooksDriveSystem(t *testing.T) {
	var logs bytes.Buffer
	script, err := CompileScript("dialog", "dialog.star", []byte(dialogScript),
		WithScriptLogger(zerolog.New(&logs)))
	if err != nil {
		t.Fatalf("CompileScript failed: %v", err)
	}

	sys, ctx := newScriptSystem(t, script)

	if _, err := sys.Show("ui/dialog", false, "open-hud").Wait(ctx); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	// The hud show submitted by on_shown runs before this one.
	if _, err := sys.Show("ui/dialog", false, nil).Wait(ctx); err != nil {
		t.Fatalf("Second show failed: %v", err)
	}

	sys.Inspect(func() {
		if sys.Find("ui/hud") == nil {
			t.Error("Expected hud to be shown by the script")
		}
		if got := sys.InputScheme(); got != "Dialog" {
			t.Errorf("Expected Dialog scheme, got %s", got)
		}
	})

	if !strings.Contains(logs.String(), "created ui/dialog") {
		t.Errorf("Expected script log, got %s", logs.String())
	}

	if _, err := sys.Close("ui/dialog", false).Wait(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	sys.Inspect(func() {
		if got := sys.InputScheme(); got != "Game" {
			t.Errorf("Expected scheme to fall back to Game, got %s", got)
		}
	})
}

func TestScriptAutoCloseAction(t *testing.T) {
	script, err := CompileScript("dialog", "dialog.star", []byte(dialogScript))
	if err != nil {
		t.Fatalf("CompileScript failed: %v", err)
	}

	hooks, ok := script.Factory(nil)().(engine.AutoCloser)
	if !ok {
		t.Fatal("Expected script hooks to implement AutoCloser")
	}
	if got := hooks.AutoCloseAction(nil, engine.ReasonMaskClick); got != engine.AutoCloseHide {
		t.Errorf("Expected hide, got %q", got)
	}
	if got := hooks.AutoCloseAction(nil, engine.ReasonDestroyAll); got != "" {
		t.Errorf("Expected template fallback, got %q", got)
	}
}

func TestScriptAutoCloseUnknownActionPanics(t *testing.T) {
	script, err := CompileScript("odd", "odd.star", []byte(`
def auto_close(panel, reason):
    return "explode"
`))
	if err != nil {
		t.Fatalf("CompileScript failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unknown action")
		}
	}()
	script.Factory(nil)().(engine.AutoCloser).AutoCloseAction(nil, engine.ReasonMaskClick)
}

type recordingLoading struct {
	progress float64
	text     string
	title    string
}

func (r *recordingLoading) SetProgress(f float64) { r.progress = f }
func (r *recordingLoading) SetText(s string)      { r.text = s }
func (r *recordingLoading) SetTitle(s string)     { r.title = s }

func TestScriptOnLoading(t *testing.T) {
	script, err := CompileScript("town", "town.star", []byte(`
def on_loading(panel, loading):
    loading.set_title("Town")
    loading.set_text("Loading")
    loading.set_progress(1)
`))
	if err != nil {
		t.Fatalf("CompileScript failed: %v", err)
	}

	hooks := script.Factory(nil)().(engine.LoadingHook)
	ctrl := &recordingLoading{}
	if err := hooks.OnLoading(context.Background(), nil, ctrl); err != nil {
		t.Fatalf("OnLoading failed: %v", err)
	}
	if ctrl.title != "Town" || ctrl.text != "Loading" || ctrl.progress != 1 {
		t.Errorf("Unexpected loading state: %+v", ctrl)
	}
}

func TestScriptSetInputSchemeOutsideHook(t *testing.T) {
	script, err := CompileScript("loader", "loader.star", []byte(`
def on_loading(panel, loading):
    set_input_scheme("Busy")
`))
	if err != nil {
		t.Fatalf("CompileScript failed: %v", err)
	}

	hooks := script.Factory(nil)().(engine.LoadingHook)
	err = hooks.OnLoading(context.Background(), nil, &recordingLoading{})
	if err == nil {
		t.Fatal("Expected set_input_scheme to fail outside a hook")
	}
}

func TestScriptStepLimit(t *testing.T) {
	script, err := CompileScript("spin", "spin.star", []byte(`
def on_show(panel):
    n = 0
    for i in range(10000000):
        n += i
`), WithScriptMaxSteps(1000))
	if err != nil {
		t.Fatalf("CompileScript failed: %v", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic when the step limit is exceeded")
		}
		if err, ok := r.(error); !ok || !strings.Contains(err.Error(), "too many steps") {
			t.Errorf("Expected step limit error, got %v", r)
		}
	}()
	script.Factory(nil)().OnShow(nil)
}

func TestCompileScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "def on_show(panel)\n    pass\n"},
		{"not a function", "on_show = 3\n"},
		{"top-level submit", `submit("show", "ui/bag")` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileScript("bad", "bad.star", []byte(tt.src)); err == nil {
				t.Error("Expected compile error")
			}
		})
	}
}

func TestLoadScripts(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "confirm.star", "def on_show(panel):\n    pass\n")

	scripts, err := LoadScripts(map[string]string{"confirm": file})
	if err != nil {
		t.Fatalf("LoadScripts failed: %v", err)
	}
	s, ok := scripts["confirm"]
	if !ok || s.Name() != "confirm" || !s.Defines("on_show") || s.Defines("on_hide") {
		t.Errorf("Unexpected scripts: %v", scripts)
	}

	if _, err := LoadScripts(map[string]string{"missing": dir + "/missing.star"}); err == nil {
		t.Error("Expected error for missing script")
	}
}

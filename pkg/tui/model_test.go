package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/panelflow/panelflow/pkg/engine"
)

func templateList() []engine.Template {
	var out []engine.Template
	for _, t := range testTemplates() {
		out = append(out, *t)
	}
	return out
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and resolves the resulting operation, if any.
func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	msg := cmd()
	if _, ok := msg.(operationDoneMsg); !ok {
		t.Fatalf("Expected operationDoneMsg, got %T", msg)
	}
	next, _ = m.Update(msg)
	return next.(Model)
}

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap(engine.DefaultSettings(), templateList())

	tests := []struct {
		key    string
		scheme string
		action Action
		path   string
	}{
		{"1", "Game", ActionToggle, "ui/bag"},
		{"2", "Game", ActionToggle, "ui/hud"},
		{"3", "Game", ActionToggle, "ui/tip"},
		{"f1", "Game", ActionSwitchMain, "main/map"},
		{"esc", "UI", ActionAutoClose, ""},
		{"esc", "Game", ActionAutoClose, ""},
		{"q", "Game", ActionQuit, ""},
		{"ctrl+c", "UI", ActionQuit, ""},
		{"X", "Game", ActionDestroyAll, ""},
	}
	for _, tt := range tests {
		b := km.Lookup(tt.key, tt.scheme)
		if b == nil {
			t.Errorf("Expected binding for %s in %s", tt.key, tt.scheme)
			continue
		}
		if b.Action != tt.action || b.Path != tt.path {
			t.Errorf("%s/%s: expected %s %q, got %s %q", tt.scheme, tt.key, tt.action, tt.path, b.Action, b.Path)
		}
	}

	if b := km.Lookup("1", "UI"); b != nil {
		t.Errorf("Expected number keys unbound in UI scheme, got %+v", b)
	}
	if b := km.Lookup("x", "Game"); b != nil {
		t.Errorf("Expected lowercase x unbound, got %+v", b)
	}
}

func TestKeyMapRegisterSkipsTakenKeys(t *testing.T) {
	km := NewKeyMap()
	km.Register(Binding{Action: ActionRefresh, Keys: []string{"r", "R"}, Scopes: []string{"Game"}})
	km.Register(Binding{Action: ActionQuit, Keys: []string{"r"}, Scopes: []string{"Game", "UI"}})

	if b := km.Lookup("r", "Game"); b == nil || b.Action != ActionRefresh {
		t.Errorf("Expected first binding to win in Game, got %+v", b)
	}
	if b := km.Lookup("r", "UI"); b == nil || b.Action != ActionQuit {
		t.Errorf("Expected quit binding in UI, got %+v", b)
	}
	if got := len(km.Bindings("Game")); got != 1 {
		t.Errorf("Expected 1 Game binding, got %d", got)
	}
}

func TestBindingOperation(t *testing.T) {
	op, ok := Binding{Action: ActionToggle, Path: "ui/bag"}.Operation(true)
	if !ok || op.Type != engine.OperationToggle || op.Path != "ui/bag" || !op.UseAnimation {
		t.Errorf("Unexpected toggle operation: %+v", op)
	}
	if _, ok := (Binding{Action: ActionQuit}).Operation(false); ok {
		t.Error("Expected quit to have no operation")
	}
}

func TestModelKeysDriveSystem(t *testing.T) {
	rig := newTestRig(t)
	km := DefaultKeyMap(rig.sys.Settings(), templateList())
	m := NewModel(rig.sys, rig.screen, rig.input, km, WithAnimations(false))

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	m = press(t, m, runes("1"))
	if m.LastHandle() == nil || m.LastHandle().Type() != engine.OperationToggle {
		t.Fatalf("Expected toggle handle, got %v", m.LastHandle())
	}
	if m.Status() != "toggle ui/bag" {
		t.Errorf("Expected status for toggle, got %q", m.Status())
	}
	if rig.input.Scheme() != "UI" {
		t.Errorf("Expected UI scheme after opening pop, got %s", rig.input.Scheme())
	}

	// Number keys are not live while the pop holds focus.
	before := m.LastHandle()
	m = press(t, m, runes("2"))
	if m.LastHandle() != before {
		t.Error("Expected no operation for unbound key")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.LastHandle().Type() != engine.OperationAutoCloseTop {
		t.Errorf("Expected auto_close_top, got %s", m.LastHandle().Type())
	}
	if rig.input.Scheme() != "Game" {
		t.Errorf("Expected Game scheme after ESC, got %s", rig.input.Scheme())
	}

	visible := rig.screen.Snapshot().Visible()
	if len(visible) != 0 {
		t.Errorf("Expected nothing visible, got %v", paths(visible))
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestModelStatusLine(t *testing.T) {
	rig := newTestRig(t)
	km := NewKeyMap()
	km.Register(Binding{Action: ActionRefresh, Keys: []string{"r"}, Scopes: []string{ScopeGlobal}})
	m := NewModel(rig.sys, rig.screen, rig.input, km, WithAnimations(false))

	m = press(t, m, runes("r"))
	if m.Status() != "refresh" {
		t.Errorf("Expected refresh status, got %q", m.Status())
	}

	h := rig.sys.Submit(engine.Operation{Type: "explode", Path: "ui/hud"})
	<-h.Done()
	next, _ := m.Update(operationDoneMsg{handle: h})
	m = next.(Model)
	if h.State() != engine.OperationStateFailed {
		t.Fatalf("Expected failed handle, got %s", h.State())
	}
	if !strings.HasPrefix(m.Status(), "explode ui/hud: ") {
		t.Errorf("Expected failure status, got %q", m.Status())
	}
}

func TestModelViewRefreshesOnFrame(t *testing.T) {
	rig := newTestRig(t)
	m := NewModel(rig.sys, rig.screen, rig.input, DefaultKeyMap(rig.sys.Settings(), templateList()))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 90, Height: 20})
	m = next.(Model)

	wait(t, rig.sys.Show("ui/hud", false, nil))
	if strings.Contains(m.View(), "layer 0") {
		t.Fatal("Expected stale view before the next frame")
	}

	next, cmd := m.Update(frameMsg{})
	m = next.(Model)
	if cmd == nil {
		t.Error("Expected next frame to be scheduled")
	}
	view := m.View()
	if !strings.Contains(view, "layer 0") {
		t.Errorf("Expected ui/hud box in view:\n%s", view)
	}
	if h := lipgloss.Height(view); h != 20 {
		t.Errorf("Expected view height 20, got %d", h)
	}
}

package engine

import (
	"sync"
	"testing"
)

type recordingSchemeHandler struct {
	mu      sync.Mutex
	applied []string
}

func (h *recordingSchemeHandler) ApplyInputScheme(previous, current string, source any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, previous+"->"+current)
}

func TestInputSchemeSequence(t *testing.T) {
	handler := &recordingSchemeHandler{}
	sys, pub := newTestSystem(t, basicTemplates(), WithInputSchemeHandler(handler))

	var effective []string
	sys.Inspect(func() {
		effective = append(effective, sys.InputScheme())
		sys.SetInputScheme("A", "UI")
		effective = append(effective, sys.InputScheme())
		sys.SetInputScheme("B", "UI2")
		effective = append(effective, sys.InputScheme())
		sys.SetInputScheme("B", "")
		effective = append(effective, sys.InputScheme())
	})

	expected := []string{"Game", "UI", "UI2", "UI"}
	for i := range expected {
		if effective[i] != expected[i] {
			t.Errorf("Step %d: expected %s, got %s", i, expected[i], effective[i])
		}
	}

	events := pub.ofType(EventInputSchemeChanged)
	if len(events) != 3 {
		t.Fatalf("Expected 3 scheme notifications, got %d", len(events))
	}
	last := events[2]
	if last.Details["previous"] != "UI2" || last.Details["current"] != "UI" || last.Details["depth"] != 1 {
		t.Errorf("Unexpected last notification details: %v", last.Details)
	}
	if last.Details["source"] != "B" {
		t.Errorf("Expected source B, got %v", last.Details["source"])
	}
	if len(handler.applied) != 3 || handler.applied[0] != "Game->UI" {
		t.Errorf("Expected handler to see 3 changes, got %v", handler.applied)
	}
}

func TestInputSchemeUpsertMovesOwnerToTail(t *testing.T) {
	sys, pub := newTestSystem(t, basicTemplates())

	sys.Inspect(func() {
		sys.SetInputScheme("A", "UI")
		sys.SetInputScheme("B", "Chat")
		sys.SetInputScheme("A", "UI")
		if got := sys.InputScheme(); got != "UI" {
			t.Errorf("Expected re-set owner to win, got %s", got)
		}
		if depth := sys.InputSchemeDepth(); depth != 2 {
			t.Errorf("Expected one entry per owner, got %d", depth)
		}

		// Same effective scheme: stack mutates, no notification.
		sys.SetInputScheme("C", "UI")
	})

	if got := pub.count(EventInputSchemeChanged, ""); got != 3 {
		t.Errorf("Expected 3 notifications, got %d", got)
	}
}

func TestTeardownRemovesSchemeEntry(t *testing.T) {
	templates := mapLoader{
		"chat": {Path: "chat", Layer: 10, Roles: RoleFocusable, InputScheme: "Chat"},
	}
	sys, _ := newTestSystem(t, templates)

	chat := mustWait(t, sys.Show("chat", false, nil))
	sys.Inspect(func() {
		if sys.InputScheme() != "Chat" {
			t.Errorf("Expected Chat while focused, got %s", sys.InputScheme())
		}
	})

	mustWait(t, sys.DestroyPanel(chat, false))
	sys.Inspect(func() {
		if sys.InputScheme() != "Game" {
			t.Errorf("Expected default scheme after teardown, got %s", sys.InputScheme())
		}
		if sys.InputSchemeDepth() != 0 {
			t.Errorf("Expected empty stack, got %d", sys.InputSchemeDepth())
		}
	})
}

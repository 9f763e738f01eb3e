package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	}, engine.WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := sys.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
}

// commands renders CMD lines for the server input.
func commands(t *testing.T, cmds ...CommandMessage) string {
	t.Helper()

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := range cmds {
		if err := enc.EncodeCommand(&cmds[i]); err != nil {
			t.Fatalf("EncodeCommand failed: %v", err)
		}
	}
	return buf.String()
}

func params(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return data
}

// serve runs a server over input and returns every message it wrote.
func serve(t *testing.T, sys *engine.System, input string) []*Message {
	t.Helper()

	var out bytes.Buffer
	srv := NewServer(sys, strings.NewReader(input), &out, WithVersion("test"), WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Serve(ctx); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	return decodeAll(t, &out)
}

func decodeAll(t *testing.T, r io.Reader) []*Message {
	t.Helper()

	var msgs []*Message
	dec := NewDecoder(r)
	for {
		msg, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return msgs
		}
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		msgs = append(msgs, msg)
	}
}

// byCommand indexes DONE and ERROR replies by command ID.
func byCommand(t *testing.T, msgs []*Message) (map[string]*DoneMessage, map[string]*ErrorMessage) {
	t.Helper()

	done := make(map[string]*DoneMessage)
	failed := make(map[string]*ErrorMessage)
	for _, msg := range msgs {
		switch msg.Type {
		case MessageTypeDone:
			var d DoneMessage
			if err := json.Unmarshal(msg.Data, &d); err != nil {
				t.Fatalf("Unmarshal DONE failed: %v", err)
			}
			done[d.CommandID] = &d
		case MessageTypeError:
			var e ErrorMessage
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				t.Fatalf("Unmarshal ERROR failed: %v", err)
			}
			failed[e.CommandID] = &e
		}
	}
	return done, failed
}

func TestServeReadyAndExit(t *testing.T) {
	msgs := serve(t, newTestSystem(t), "")

	if len(msgs) != 2 {
		t.Fatalf("Expected READY and EXIT, got %d messages", len(msgs))
	}
	if msgs[0].Type != MessageTypeReady {
		t.Errorf("Expected READY first, got %s", msgs[0].Type)
	}

	var ready ReadyMessage
	if err := json.Unmarshal(msgs[0].Data, &ready); err != nil {
		t.Fatalf("Unmarshal READY failed: %v", err)
	}
	if ready.Version != "test" {
		t.Errorf("Expected version test, got %s", ready.Version)
	}
	if ready.Scheme != "Game" {
		t.Errorf("Expected scheme Game, got %s", ready.Scheme)
	}
	if len(ready.Commands) != 4 {
		t.Errorf("Expected 4 commands, got %v", ready.Commands)
	}

	var exit ExitMessage
	if err := json.Unmarshal(msgs[1].Data, &exit); err != nil {
		t.Fatalf("Unmarshal EXIT failed: %v", err)
	}
	if msgs[1].Type != MessageTypeExit || exit.Reason != "eof" || exit.CommandsTotal != 0 {
		t.Errorf("Unexpected exit: %s %+v", msgs[1].Type, exit)
	}
}

func TestServeOperations(t *testing.T) {
	sys := newTestSystem(t)

	msgs := serve(t, sys, commands(t,
		CommandMessage{ID: "town", Type: CommandTypeOperation, Params: params(t, OperationParams{Op: engine.OperationShowMain, Path: "scenes/town"})},
		CommandMessage{ID: "bag", Type: CommandTypeOperation, Params: params(t, OperationParams{Op: engine.OperationShow, Path: "ui/bag"})},
		CommandMessage{ID: "missing", Type: CommandTypeOperation, Params: params(t, OperationParams{Op: engine.OperationShow, Path: "ui/missing"})},
	))

	if last := msgs[len(msgs)-1]; last.Type != MessageTypeExit {
		t.Errorf("Expected EXIT last, got %s", last.Type)
	}

	done, failed := byCommand(t, msgs)
	for _, id := range []string{"town", "bag"} {
		d, ok := done[id]
		if !ok {
			t.Fatalf("Expected DONE for %s", id)
		}
		var res OperationResult
		if err := json.Unmarshal(d.Result, &res); err != nil {
			t.Fatalf("Unmarshal result failed: %v", err)
		}
		if res.State != string(engine.OperationStateCompleted) {
			t.Errorf("%s: expected completed, got %s", id, res.State)
		}
		if res.PanelID == 0 || res.OperationID == 0 {
			t.Errorf("%s: expected panel and operation IDs, got %+v", id, res)
		}
	}

	// A missing template is a completed no-op with no panel.
	if e := failed["missing"]; e != nil {
		t.Fatalf("Unexpected ERROR for missing template: %+v", e)
	}
	var missing OperationResult
	if d := done["missing"]; d == nil {
		t.Fatal("Expected DONE for missing template")
	} else if err := json.Unmarshal(d.Result, &missing); err != nil {
		t.Fatalf("Unmarshal result failed: %v", err)
	}
	if missing.PanelID != 0 || missing.State != string(engine.OperationStateCompleted) {
		t.Errorf("Unexpected missing result: %+v", missing)
	}

	// A second session on the same system sees the stack built by the first.
	msgs = serve(t, sys, commands(t, CommandMessage{ID: "s", Type: CommandTypeState}))
	done, _ = byCommand(t, msgs)
	if done["s"] == nil {
		t.Fatal("Expected DONE for state")
	}

	var state StateResult
	if err := json.Unmarshal(done["s"].Result, &state); err != nil {
		t.Fatalf("Unmarshal state failed: %v", err)
	}
	if len(state.Panels) != 2 || state.Panels[0].Path != "ui/bag" || state.Panels[1].Path != "scenes/town" {
		t.Errorf("Unexpected panels: %+v", state.Panels)
	}
	if !state.Panels[0].Visible || state.Panels[0].Roles != "focusable|pop" {
		t.Errorf("Unexpected top panel: %+v", state.Panels[0])
	}
	if state.Main != "scenes/town" || state.Focus != "ui/bag" || state.Mask != "ui/bag" {
		t.Errorf("Unexpected main/focus/mask: %q %q %q", state.Main, state.Focus, state.Mask)
	}
	if state.Scheme != "UI" {
		t.Errorf("Expected scheme UI, got %s", state.Scheme)
	}
}

func TestServeInputScheme(t *testing.T) {
	sys := newTestSystem(t)

	msgs := serve(t, sys, commands(t,
		CommandMessage{ID: "set", Type: CommandTypeInputScheme, Params: params(t, InputSchemeParams{Owner: "cutscene", Scheme: "Cinematic"})},
		CommandMessage{ID: "clear", Type: CommandTypeInputScheme, Params: params(t, InputSchemeParams{Owner: "cutscene"})},
		CommandMessage{ID: "anon", Type: CommandTypeInputScheme, Params: params(t, InputSchemeParams{Scheme: "Cinematic"})},
	))

	done, failed := byCommand(t, msgs)
	want := map[string]string{"set": "Cinematic", "clear": "Game"}
	for id, scheme := range want {
		d, ok := done[id]
		if !ok {
			t.Fatalf("Expected DONE for %s", id)
		}
		var res map[string]string
		if err := json.Unmarshal(d.Result, &res); err != nil {
			t.Fatalf("Unmarshal result failed: %v", err)
		}
		if res["input_scheme"] != scheme {
			t.Errorf("%s: expected %s, got %s", id, scheme, res["input_scheme"])
		}
	}

	if e := failed["anon"]; e == nil || e.Code != CodeBadCommand {
		t.Errorf("Expected BAD_COMMAND for missing owner, got %+v", e)
	}
}

func TestServeRejectsBadInput(t *testing.T) {
	input := strings.Join([]string{
		`not json`,
		`{"type":"DONE","timestamp":"2026-01-01T00:00:00Z","data":{"command_id":"x"}}`,
		`{"type":"CMD","timestamp":"2026-01-01T00:00:00Z","data":{"id":"bogus","type":"explode"}}`,
		`{"type":"CMD","timestamp":"2026-01-01T00:00:00Z","data":{"id":"badop","type":"op","params":{"op":"explode","path":"ui/bag"}}}`,
		`{"type":"CMD","timestamp":"2026-01-01T00:00:00Z","data":{"id":"inv","type":"invalidate"}}`,
	}, "\n") + "\n"

	msgs := serve(t, newTestSystem(t), input)
	done, failed := byCommand(t, msgs)

	if e := failed[""]; e == nil || e.Code != CodeBadMessage {
		t.Errorf("Expected BAD_MESSAGE without command ID, got %+v", e)
	}
	if e := failed["bogus"]; e == nil || e.Code != CodeBadMessage {
		t.Errorf("Expected BAD_MESSAGE for unknown command type, got %+v", e)
	}
	if e := failed["badop"]; e == nil || e.Code != CodeBadCommand {
		t.Errorf("Expected BAD_COMMAND for unknown op, got %+v", e)
	}
	if done["inv"] == nil {
		t.Error("Expected DONE for invalidate")
	}

	var exit ExitMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].Data, &exit); err != nil {
		t.Fatalf("Unmarshal EXIT failed: %v", err)
	}
	if exit.CommandsTotal != 2 {
		t.Errorf("Expected 2 accepted commands, got %d", exit.CommandsTotal)
	}
}

func TestServeCanceled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	srv := NewServer(newTestSystem(t), r, &out)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	msgs := decodeAll(t, &out)
	var exit ExitMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].Data, &exit); err != nil {
		t.Fatalf("Unmarshal EXIT failed: %v", err)
	}
	if exit.Reason != "canceled" {
		t.Errorf("Expected reason canceled, got %s", exit.Reason)
	}
}

func TestHandleEventFilter(t *testing.T) {
	var out bytes.Buffer
	srv := NewServer(newTestSystem(t), strings.NewReader(""), &out,
		WithEventFilter(engine.EventFilter{Types: []engine.EventType{engine.EventPanelShown}}))

	ctx := context.Background()
	srv.HandleEvent(ctx, &engine.Event{Type: engine.EventPanelCreated, Path: "ui/bag", Level: "debug"})
	srv.HandleEvent(ctx, &engine.Event{Type: engine.EventPanelShown, Path: "ui/bag", PanelID: 3, Level: "info"})

	msgs := decodeAll(t, &out)
	if len(msgs) != 1 || msgs[0].Type != MessageTypeEvent {
		t.Fatalf("Expected one EVENT, got %d messages", len(msgs))
	}
	var ev EventMessage
	if err := json.Unmarshal(msgs[0].Data, &ev); err != nil {
		t.Fatalf("Unmarshal EVENT failed: %v", err)
	}
	if ev.Type != engine.EventPanelShown || ev.Path != "ui/bag" || ev.PanelID != 3 {
		t.Errorf("Unexpected event: %+v", ev)
	}
}

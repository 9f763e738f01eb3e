package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestEncoder(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "encode ready message",
			msgType: MessageTypeReady,
			data: &ReadyMessage{
				Version: "1.0.0",
				PID:     1234,
				Scheme:  "Game",
				Caps:    map[string]bool{"events": true},
			},
		},
		{
			name:    "encode event message",
			msgType: MessageTypeEvent,
			data: &EventMessage{
				Type:  "panel.shown",
				Level: "info",
				Path:  "ui/bag",
			},
		},
		{
			name:    "encode done message",
			msgType: MessageTypeDone,
			data: &DoneMessage{
				CommandID: "cmd-123",
				Duration:  0.5,
			},
		},
		{
			name:    "encode error message",
			msgType: MessageTypeError,
			data: &ErrorMessage{
				CommandID: "cmd-123",
				Code:      CodeFailed,
				Message:   "operation failed",
			},
		},
		{
			name:    "encode exit message",
			msgType: MessageTypeExit,
			data:    &ExitMessage{Reason: "eof", CommandsTotal: 5},
		},
		{
			name:    "invalid message type",
			msgType: MessageType("INVALID"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := NewEncoder(&buf).Encode(tt.msgType, tt.data)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Encode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			out := buf.String()
			if !strings.HasSuffix(out, "\n") || strings.Count(out, "\n") != 1 {
				t.Errorf("Expected a single line, got %q", out)
			}

			var msg Message
			if err := json.Unmarshal([]byte(out), &msg); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("Expected type %s, got %s", tt.msgType, msg.Type)
			}
			if msg.Timestamp.IsZero() {
				t.Error("Expected timestamp to be set")
			}
		})
	}
}

func TestEncodeCommandValidates(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.EncodeCommand(&CommandMessage{Type: CommandTypeState}); err == nil {
		t.Error("Expected error for command without ID")
	}
	if err := enc.EncodeCommand(&CommandMessage{ID: "1", Type: "explode"}); err == nil {
		t.Error("Expected error for unknown command type")
	}
	if err := enc.EncodeCommand(&CommandMessage{ID: "1", Type: CommandTypeOperation}); err == nil {
		t.Error("Expected error for op without params")
	}
	if buf.Len() != 0 {
		t.Errorf("Expected nothing written, got %q", buf.String())
	}

	if err := enc.EncodeCommand(&CommandMessage{ID: "1", Type: CommandTypeState}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDecoder(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"CMD","timestamp":"2026-01-01T00:00:00Z","data":{"id":"a","type":"state"}}`,
		``,
		`{"type":"CMD","timestamp":"2026-01-01T00:00:00Z","data":{"id":"b","type":"op","params":{"op":"show","path":"ui/bag"}}}`,
		`not json`,
		`{"type":"BOGUS"}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(input))

	msg, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	cmd, err := ParseCommand(msg)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd.ID != "a" || cmd.Type != CommandTypeState {
		t.Errorf("Unexpected command: %+v", cmd)
	}

	msg, err = dec.Decode()
	if err != nil {
		t.Fatalf("Decode failed after blank line: %v", err)
	}
	cmd, err = ParseCommand(msg)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	var params OperationParams
	if err := ParseParams(cmd.Params, &params); err != nil {
		t.Fatalf("ParseParams failed: %v", err)
	}
	if params.Op != "show" || params.Path != "ui/bag" {
		t.Errorf("Unexpected params: %+v", params)
	}

	if _, err := dec.Decode(); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	if _, err := dec.Decode(); err == nil {
		t.Error("Expected error for unknown message type")
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestDecoderOversizedLine(t *testing.T) {
	dec := NewDecoder(strings.NewReader(strings.Repeat("x", maxMessageSize+1) + "\n"))
	if _, err := dec.Decode(); !errors.Is(err, ErrStream) {
		t.Errorf("Expected stream error, got %v", err)
	}
}

func TestParseCommandErrors(t *testing.T) {
	if _, err := ParseCommand(&Message{Type: MessageTypeDone}); err == nil {
		t.Error("Expected error for non-command message")
	}

	cmd, err := ParseCommand(&Message{Type: MessageTypeCommand, Data: json.RawMessage(`{"id":"x","type":"explode"}`)})
	if err == nil {
		t.Fatal("Expected error for unknown command type")
	}
	if cmd == nil || cmd.ID != "x" {
		t.Error("Expected the decoded command to be returned with its ID")
	}
}

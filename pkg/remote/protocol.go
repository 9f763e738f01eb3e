// Package remote implements a JSON-over-stdio protocol for driving a panel
// system from another process, such as a game engine hosting the real views.
package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/panelflow/panelflow/pkg/engine"
)

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeReady is sent once when the server accepts commands
	MessageTypeReady MessageType = "READY"
	// MessageTypeCommand is a command from the host
	MessageTypeCommand MessageType = "CMD"
	// MessageTypeEvent forwards a panel system event
	MessageTypeEvent MessageType = "EVENT"
	// MessageTypeDone indicates a command completed
	MessageTypeDone MessageType = "DONE"
	// MessageTypeError indicates a command or message was rejected
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit is sent before the server returns
	MessageTypeExit MessageType = "EXIT"
)

// CommandType represents the type of command to execute.
type CommandType string

const (
	// CommandTypeOperation submits a panel operation
	CommandTypeOperation CommandType = "op"
	// CommandTypeInputScheme sets or clears an input scheme owner
	CommandTypeInputScheme CommandType = "input_scheme"
	// CommandTypeState returns a snapshot of the stack
	CommandTypeState CommandType = "state"
	// CommandTypeInvalidate drops cached templates
	CommandTypeInvalidate CommandType = "invalidate"
)

// Error codes carried by ErrorMessage.
const (
	CodeBadMessage = "BAD_MESSAGE"
	CodeBadCommand = "BAD_COMMAND"
	CodeTimeout    = "TIMEOUT"
	CodeFailed     = "FAILED"
	CodeCanceled   = "CANCELED"
)

// Message is the base message structure for all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent when the server is ready to receive commands.
type ReadyMessage struct {
	Version  string          `json:"version"`
	PID      int             `json:"pid"`
	Scheme   string          `json:"input_scheme"`
	Commands []CommandType   `json:"commands"`
	Caps     map[string]bool `json:"capabilities"`
}

// CommandMessage contains a command to execute.
type CommandMessage struct {
	ID      string          `json:"id"`
	Type    CommandType     `json:"type"`
	Timeout int             `json:"timeout_ms,omitempty"` // milliseconds, zero uses the server default
	Params  json.RawMessage `json:"params,omitempty"`
}

// OperationParams are the params of an op command.
type OperationParams struct {
	Op           engine.OperationType `json:"op"`
	Path         string               `json:"path,omitempty"`
	UseAnimation bool                 `json:"use_animation"`
	Force        bool                 `json:"force,omitempty"`
	UserData     map[string]any       `json:"user_data,omitempty"`
}

// InputSchemeParams are the params of an input_scheme command. An empty
// scheme removes the owner's request.
type InputSchemeParams struct {
	Owner  string `json:"owner"`
	Scheme string `json:"scheme,omitempty"`
}

// InvalidateParams are the params of an invalidate command. An empty path
// drops every cached template.
type InvalidateParams struct {
	Path string `json:"path,omitempty"`
}

// OperationResult is the result of an op command.
type OperationResult struct {
	OperationID uint64 `json:"operation_id"`
	State       string `json:"state"`
	PanelID     uint64 `json:"panel_id,omitempty"`
	Path        string `json:"path,omitempty"`
}

// PanelState describes one live panel.
type PanelState struct {
	ID      uint64 `json:"id"`
	Path    string `json:"path"`
	Layer   int    `json:"layer"`
	Roles   string `json:"roles"`
	State   string `json:"state"`
	Visible bool   `json:"visible"`
}

// StateResult is the result of a state command.
type StateResult struct {
	Panels     []PanelState `json:"panels"` // topmost first
	Main       string       `json:"main,omitempty"`
	Focus      string       `json:"focus,omitempty"`
	Mask       string       `json:"mask,omitempty"`
	Scheme     string       `json:"input_scheme"`
	History    []string     `json:"main_history,omitempty"`
	QueueDepth int          `json:"queue_depth"`
}

// EventMessage forwards a panel system event.
type EventMessage struct {
	Type        engine.EventType       `json:"type"`
	Level       string                 `json:"level"`
	Path        string                 `json:"path,omitempty"`
	PanelID     uint64                 `json:"panel_id,omitempty"`
	OperationID uint64                 `json:"operation_id,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// DoneMessage indicates successful command completion.
type DoneMessage struct {
	CommandID string          `json:"command_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Duration  float64         `json:"duration"` // seconds
}

// ErrorMessage indicates an error occurred.
type ErrorMessage struct {
	CommandID string `json:"command_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ExitMessage is sent before the server returns.
type ExitMessage struct {
	Reason        string `json:"reason"`
	CommandsTotal int    `json:"commands_total"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeCommand, MessageTypeEvent,
		MessageTypeDone, MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the command type is valid.
func (ct CommandType) Validate() error {
	switch ct {
	case CommandTypeOperation, CommandTypeInputScheme, CommandTypeState, CommandTypeInvalidate:
		return nil
	default:
		return fmt.Errorf("invalid command type: %s", ct)
	}
}

// Validate checks if the command message is valid.
func (cmd *CommandMessage) Validate() error {
	if cmd.ID == "" {
		return fmt.Errorf("command ID is required")
	}
	if err := cmd.Type.Validate(); err != nil {
		return err
	}
	if cmd.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if cmd.Type == CommandTypeOperation && len(cmd.Params) == 0 {
		return fmt.Errorf("op params are required")
	}
	return nil
}

// Validate checks the operation params.
func (p *OperationParams) Validate() error {
	if err := p.Op.Validate(); err != nil {
		return err
	}
	return nil
}

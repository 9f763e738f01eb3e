package remote

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// maxMessageSize bounds one encoded line.
const maxMessageSize = 1 << 20

// ErrStream wraps read failures after which the decoder cannot continue.
var ErrStream = errors.New("stream error")

// Encoder writes protocol messages to an io.Writer, one JSON object per line.
// It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Encoder{buf: buf, enc: enc}
}

// Encode stamps data as a msgType message and writes it as one line.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return err
	}

	msg := Message{Type: msgType, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal %s data: %w", msgType, err)
		}
		msg.Data = raw
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// json.Encoder terminates each value with a newline.
	if err := e.enc.Encode(&msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", msgType, err)
	}
	return e.buf.Flush()
}

// EncodeReady sends a READY message.
func (e *Encoder) EncodeReady(ready *ReadyMessage) error {
	return e.Encode(MessageTypeReady, ready)
}

// EncodeCommand sends a CMD message.
func (e *Encoder) EncodeCommand(cmd *CommandMessage) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	return e.Encode(MessageTypeCommand, cmd)
}

// EncodeEvent sends an EVENT message.
func (e *Encoder) EncodeEvent(event *EventMessage) error {
	return e.Encode(MessageTypeEvent, event)
}

// EncodeDone sends a DONE message.
func (e *Encoder) EncodeDone(done *DoneMessage) error {
	return e.Encode(MessageTypeDone, done)
}

// EncodeError sends an ERROR message.
func (e *Encoder) EncodeError(err *ErrorMessage) error {
	return e.Encode(MessageTypeError, err)
}

// EncodeExit sends an EXIT message.
func (e *Encoder) EncodeExit(exit *ExitMessage) error {
	return e.Encode(MessageTypeExit, exit)
}

// Decoder reads protocol messages from an io.Reader.
type Decoder struct {
	r *bufio.Scanner
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	return &Decoder{
		r: scanner,
	}
}

// Decode reads the next message from the input stream. Blank lines are
// skipped. It returns io.EOF at the end of the stream.
func (d *Decoder) Decode() (*Message, error) {
	var line []byte
	for len(line) == 0 {
		if !d.r.Scan() {
			if err := d.r.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStream, err)
			}
			return nil, io.EOF
		}
		line = d.r.Bytes()
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if err := msg.Type.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	return &msg, nil
}

// ParseCommand decodes the data of a CMD message.
func ParseCommand(msg *Message) (*CommandMessage, error) {
	if msg.Type != MessageTypeCommand {
		return nil, fmt.Errorf("expected CMD message, got %s", msg.Type)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}

	if err := cmd.Validate(); err != nil {
		return &cmd, fmt.Errorf("invalid command: %w", err)
	}

	return &cmd, nil
}

// ParseParams parses command parameters into a specific type.
func ParseParams(params json.RawMessage, target interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, target); err != nil {
		return fmt.Errorf("failed to parse params: %w", err)
	}
	return nil
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

// DefaultTimeout bounds how long an op command waits for its handle.
const DefaultTimeout = 30 * time.Second

// ownerKey identifies an input scheme owner declared by the host.
type ownerKey string

// Server reads commands from the host and drives a System.
type Server struct {
	sys     *engine.System
	enc     *Encoder
	dec     *Decoder
	logger  zerolog.Logger
	version string
	timeout time.Duration
	filter  engine.EventFilter

	wg       sync.WaitGroup
	commands int
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported in READY.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithTimeout sets the default op command timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithEventFilter limits which events HandleEvent forwards.
func WithEventFilter(f engine.EventFilter) Option {
	return func(s *Server) { s.filter = f }
}

// NewServer creates a server reading commands from r and writing replies to w.
func NewServer(sys *engine.System, r io.Reader, w io.Writer, opts ...Option) *Server {
	s := &Server{
		sys:     sys,
		enc:     NewEncoder(w),
		dec:     NewDecoder(r),
		logger:  zerolog.Nop(),
		version: "dev",
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "remote").Logger()
	return s
}

// HandleEvent forwards an event to the host. It matches engine.EventHandler
// so it can be subscribed to an event bus.
func (s *Server) HandleEvent(_ context.Context, e *engine.Event) {
	if !s.filter.Matches(e) {
		return
	}
	err := s.enc.EncodeEvent(&EventMessage{
		Type:        e.Type,
		Level:       e.Level,
		Path:        e.Path,
		PanelID:     e.PanelID,
		OperationID: e.OperationID,
		Message:     e.Message,
		Details:     e.Details,
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("type", string(e.Type)).Msg("Failed to forward event")
	}
}

type decoded struct {
	msg *Message
	err error
}

// Serve sends READY and handles commands until the input ends or ctx is
// done. Outstanding op commands are answered before EXIT is sent.
func (s *Server) Serve(ctx context.Context) error {
	var scheme string
	s.sys.Inspect(func() { scheme = s.sys.InputScheme() })

	if err := s.enc.EncodeReady(&ReadyMessage{
		Version: s.version,
		PID:     os.Getpid(),
		Scheme:  scheme,
		Commands: []CommandType{
			CommandTypeOperation, CommandTypeInputScheme, CommandTypeState, CommandTypeInvalidate,
		},
		Caps: map[string]bool{"events": true},
	}); err != nil {
		return fmt.Errorf("failed to send READY: %w", err)
	}
	s.logger.Info().Msg("Remote control ready")

	incoming := make(chan decoded)
	go func() {
		for {
			msg, err := s.dec.Decode()
			select {
			case incoming <- decoded{msg: msg, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && (errors.Is(err, io.EOF) || errors.Is(err, ErrStream)) {
				return
			}
		}
	}()

	reason := "eof"
	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			reason = "canceled"
			serveErr = ctx.Err()
			break loop
		case in := <-incoming:
			switch {
			case errors.Is(in.err, io.EOF):
				break loop
			case errors.Is(in.err, ErrStream):
				reason = "stream error"
				serveErr = in.err
				break loop
			case in.err != nil:
				s.reject("", CodeBadMessage, in.err)
				continue
			}

			cmd, err := ParseCommand(in.msg)
			if err != nil {
				id := ""
				if cmd != nil {
					id = cmd.ID
				}
				s.reject(id, CodeBadMessage, err)
				continue
			}
			s.commands++
			s.handle(ctx, cmd)
		}
	}

	s.wg.Wait()
	if err := s.enc.EncodeExit(&ExitMessage{Reason: reason, CommandsTotal: s.commands}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send EXIT")
	}
	s.logger.Info().Str("reason", reason).Int("commands", s.commands).Msg("Remote control stopped")
	return serveErr
}

func (s *Server) handle(ctx context.Context, cmd *CommandMessage) {
	start := time.Now()
	s.logger.Debug().Str("id", cmd.ID).Str("type", string(cmd.Type)).Msg("Command received")

	switch cmd.Type {
	case CommandTypeOperation:
		var params OperationParams
		if err := ParseParams(cmd.Params, &params); err != nil {
			s.reject(cmd.ID, CodeBadCommand, err)
			return
		}
		if err := params.Validate(); err != nil {
			s.reject(cmd.ID, CodeBadCommand, err)
			return
		}
		op := engine.Operation{
			Type:         params.Op,
			Path:         params.Path,
			UseAnimation: params.UseAnimation,
			Force:        params.Force,
		}
		if params.UserData != nil {
			op.UserData = params.UserData
		}
		h := s.sys.Submit(op)

		timeout := s.timeout
		if cmd.Timeout > 0 {
			timeout = time.Duration(cmd.Timeout) * time.Millisecond
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.awaitOperation(ctx, cmd.ID, h, timeout, start)
		}()

	case CommandTypeInputScheme:
		var params InputSchemeParams
		if err := ParseParams(cmd.Params, &params); err != nil {
			s.reject(cmd.ID, CodeBadCommand, err)
			return
		}
		if params.Owner == "" {
			s.reject(cmd.ID, CodeBadCommand, fmt.Errorf("owner is required"))
			return
		}
		var effective string
		s.sys.Inspect(func() {
			s.sys.SetInputScheme(ownerKey(params.Owner), params.Scheme)
			effective = s.sys.InputScheme()
		})
		s.done(cmd.ID, map[string]string{"input_scheme": effective}, start)

	case CommandTypeState:
		s.done(cmd.ID, s.state(), start)

	case CommandTypeInvalidate:
		var params InvalidateParams
		if err := ParseParams(cmd.Params, &params); err != nil {
			s.reject(cmd.ID, CodeBadCommand, err)
			return
		}
		s.sys.InvalidateTemplates(params.Path)
		s.done(cmd.ID, nil, start)
	}
}

func (s *Server) awaitOperation(ctx context.Context, id string, h *engine.OperationHandle, timeout time.Duration, start time.Time) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := h.Wait(waitCtx)
	if !h.IsCompleted() {
		s.encodeError(&ErrorMessage{
			CommandID: id,
			Code:      CodeTimeout,
			Message:   fmt.Sprintf("operation %d still %s after %s", h.ID(), h.State(), timeout),
			Retryable: true,
		})
		return
	}

	switch h.State() {
	case engine.OperationStateCompleted:
		res := OperationResult{OperationID: h.ID(), State: string(h.State())}
		if p != nil {
			res.PanelID = p.ID()
			res.Path = p.Path()
		}
		s.done(id, res, start)
	case engine.OperationStateCanceled:
		s.encodeError(&ErrorMessage{CommandID: id, Code: CodeCanceled, Message: errorText(err, "operation canceled")})
	default:
		s.encodeError(&ErrorMessage{CommandID: id, Code: CodeFailed, Message: errorText(err, "operation failed")})
	}
}

// state snapshots the stack inside the cooperative context.
func (s *Server) state() *StateResult {
	res := &StateResult{Panels: []PanelState{}}
	s.sys.Inspect(func() {
		for _, p := range s.sys.Order() {
			res.Panels = append(res.Panels, PanelState{
				ID:      p.ID(),
				Path:    p.Path(),
				Layer:   p.Layer(),
				Roles:   p.Roles().String(),
				State:   string(p.State()),
				Visible: p.IsVisible(),
			})
		}
		if p := s.sys.CurrentMain(); p != nil {
			res.Main = p.Path()
		}
		if p := s.sys.FocusHolder(); p != nil {
			res.Focus = p.Path()
		}
		if p := s.sys.MaskTarget(); p != nil {
			res.Mask = p.Path()
		}
		res.Scheme = s.sys.InputScheme()
		res.History = s.sys.MainHistory()
		res.QueueDepth = s.sys.QueueDepth()
	})
	return res
}

func (s *Server) done(id string, result any, start time.Time) {
	msg := &DoneMessage{CommandID: id, Duration: time.Since(start).Seconds()}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			s.reject(id, CodeFailed, fmt.Errorf("failed to marshal result: %w", err))
			return
		}
		msg.Result = data
	}
	if err := s.enc.EncodeDone(msg); err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("Failed to send DONE")
	}
}

func (s *Server) reject(id, code string, err error) {
	s.logger.Warn().Err(err).Str("id", id).Str("code", code).Msg("Command rejected")
	s.encodeError(&ErrorMessage{CommandID: id, Code: code, Message: err.Error()})
}

func (s *Server) encodeError(msg *ErrorMessage) {
	if err := s.enc.EncodeError(msg); err != nil {
		s.logger.Error().Err(err).Str("id", msg.CommandID).Msg("Failed to send ERROR")
	}
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

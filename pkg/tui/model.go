package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

// FrameInterval is how often the model polls the screen for changes.
const FrameInterval = 33 * time.Millisecond

type frameMsg time.Time

// operationDoneMsg reports a resolved key-triggered operation.
type operationDoneMsg struct {
	handle *engine.OperationHandle
}

// Model is the bubbletea model driving a panel system from the keyboard.
type Model struct {
	sys    *engine.System
	screen *Screen
	input  *InputRouter
	keys   *KeyMap
	logger zerolog.Logger

	useAnimation bool
	width        int
	height       int
	status       string
	snap         Snapshot
	lastHandle   *engine.OperationHandle
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithAnimations sets whether key-triggered operations animate.
func WithAnimations(enabled bool) ModelOption {
	return func(m *Model) { m.useAnimation = enabled }
}

// WithModelLogger sets the logger.
func WithModelLogger(logger zerolog.Logger) ModelOption {
	return func(m *Model) { m.logger = logger }
}

// NewModel creates a model. screen and input must be the collaborators the
// system was built with.
func NewModel(sys *engine.System, screen *Screen, input *InputRouter, keys *KeyMap, opts ...ModelOption) Model {
	m := Model{
		sys:          sys,
		screen:       screen,
		input:        input,
		keys:         keys,
		logger:       zerolog.Nop(),
		useAnimation: true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.snap = screen.Snapshot()
	return m
}

func frameCmd() tea.Cmd {
	return tea.Tick(FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func awaitCmd(h *engine.OperationHandle) tea.Cmd {
	return func() tea.Msg {
		<-h.Done()
		return operationDoneMsg{handle: h}
	}
}

func (m Model) Init() tea.Cmd {
	return frameCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case frameMsg:
		if snap := m.screen.Snapshot(); snap.Version != m.snap.Version {
			m.snap = snap
		}
		return m, frameCmd()
	case operationDoneMsg:
		return m.handleOperationDone(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	b := m.keys.Lookup(msg.String(), m.input.Scheme())
	if b == nil {
		return m, nil
	}
	if b.Action == ActionQuit {
		return m, tea.Quit
	}

	op, ok := b.Operation(m.useAnimation)
	if !ok {
		return m, nil
	}
	h := m.sys.Submit(op)
	m.lastHandle = h
	m.logger.Debug().Str("key", msg.String()).Str("op", string(op.Type)).Str("path", op.Path).Uint64("operation_id", h.ID()).Msg("Key submitted operation")
	return m, awaitCmd(h)
}

func (m Model) handleOperationDone(msg operationDoneMsg) (tea.Model, tea.Cmd) {
	h := msg.handle
	switch {
	case h.Err() != nil:
		m.status = fmt.Sprintf("%s %s: %v", h.Type(), h.Path(), h.Err())
	case h.Path() != "":
		m.status = fmt.Sprintf("%s %s", h.Type(), h.Path())
	default:
		m.status = string(h.Type())
	}
	m.snap = m.screen.Snapshot()
	return m, nil
}

func (m Model) View() string {
	scheme := m.input.Scheme()
	return Render(m.snap, RenderOptions{
		Width:    m.width,
		Height:   m.height,
		Scheme:   scheme,
		Bindings: m.keys.Bindings(scheme),
		Status:   m.status,
	})
}

// LastHandle returns the handle of the most recent key-triggered operation.
func (m Model) LastHandle() *engine.OperationHandle { return m.lastHandle }

// Status returns the status line.
func (m Model) Status() string { return m.status }

// Run starts a bubbletea program on the terminal and blocks until it exits
// or ctx is canceled.
func Run(ctx context.Context, m Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(m, opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

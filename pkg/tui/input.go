package tui

import (
	"sync"

	"github.com/rs/zerolog"
)

// InputRouter implements engine.InputSchemeHandler. The current scheme selects
// which key bindings are live.
type InputRouter struct {
	mu      sync.RWMutex
	scheme  string
	changes uint64
	logger  zerolog.Logger
}

// NewInputRouter creates a router starting at scheme.
func NewInputRouter(scheme string, logger zerolog.Logger) *InputRouter {
	return &InputRouter{
		scheme: scheme,
		logger: logger.With().Str("component", "input").Logger(),
	}
}

func (r *InputRouter) ApplyInputScheme(previous, current string, _ any) {
	r.mu.Lock()
	r.scheme = current
	r.changes++
	logger := r.logger
	r.mu.Unlock()

	logger.Debug().Str("previous", previous).Str("current", current).Msg("Input scheme applied")
}

// SetLogger replaces the logger.
func (r *InputRouter) SetLogger(logger zerolog.Logger) {
	r.mu.Lock()
	r.logger = logger.With().Str("component", "input").Logger()
	r.mu.Unlock()
}

// Scheme returns the current input scheme.
func (r *InputRouter) Scheme() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scheme
}

// Changes returns how many times the scheme was applied.
func (r *InputRouter) Changes() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changes
}

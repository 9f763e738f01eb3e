package engine

import (
	"context"
	"sync"
	"time"
)

// OperationHandle is a future for a queued operation. It is resolved exactly once.
type OperationHandle struct {
	id uint64
	op Operation

	mu          sync.Mutex
	state       OperationState
	result      *Panel
	err         error
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	done        chan struct{}
}

func newOperationHandle(id uint64, op Operation) *OperationHandle {
	return &OperationHandle{
		id:          id,
		op:          op,
		state:       OperationStatePending,
		submittedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ID returns the monotonic operation ID.
func (h *OperationHandle) ID() uint64 { return h.id }

// Type returns the operation type.
func (h *OperationHandle) Type() OperationType { return h.op.Type }

// Path returns the target path.
func (h *OperationHandle) Path() string { return h.op.target() }

// Operation returns the submitted operation.
func (h *OperationHandle) Operation() Operation { return h.op }

// State returns the current completion state.
func (h *OperationHandle) State() OperationState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error of a Failed or Canceled handle.
func (h *OperationHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done returns a channel closed when the handle is resolved.
func (h *OperationHandle) Done() <-chan struct{} {
	return h.done
}

// IsCompleted reports whether the handle has been resolved in any terminal state.
func (h *OperationHandle) IsCompleted() bool {
	return h.State().IsTerminal()
}

// TryGetResult returns the result panel without blocking. ok is true only when Completed.
func (h *OperationHandle) TryGetResult() (*Panel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != OperationStateCompleted {
		return nil, false
	}
	return h.result, true
}

// Wait blocks until the handle is resolved or ctx is done.
func (h *OperationHandle) Wait(ctx context.Context) (*Panel, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Timing returns when the handle was submitted, started and finished.
func (h *OperationHandle) Timing() (submitted, started, finished time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submittedAt, h.startedAt, h.finishedAt
}

func (h *OperationHandle) markRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = OperationStateRunning
	h.startedAt = time.Now()
}

// resolve moves the handle to a terminal state. Later calls are ignored.
func (h *OperationHandle) resolve(state OperationState, result *Panel, err error) bool {
	h.mu.Lock()
	if h.state.IsTerminal() {
		h.mu.Unlock()
		return false
	}
	h.state = state
	h.result = result
	h.err = err
	h.finishedAt = time.Now()
	h.mu.Unlock()
	close(h.done)
	return true
}

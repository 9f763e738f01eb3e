package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// operationQueue is the system-wide FIFO of pending operations.
// It has its own lock so operations can be submitted from inside hooks.
type operationQueue struct {
	// mu protects the fields below
	mu sync.Mutex

	// items are the pending handles in submission order
	items []*OperationHandle

	// nextID is the last assigned operation ID
	nextID uint64

	// closed rejects new submissions after shutdown
	closed bool

	// wake signals the drain loop that items were appended
	wake chan struct{}
}

func newOperationQueue() *operationQueue {
	return &operationQueue{wake: make(chan struct{}, 1)}
}

func (q *operationQueue) push(op Operation) (*OperationHandle, int, bool) {
	q.mu.Lock()
	q.nextID++
	h := newOperationHandle(q.nextID, op)
	if q.closed {
		q.mu.Unlock()
		return h, 0, false
	}
	q.items = append(q.items, h)
	depth := len(q.items)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return h, depth, true
}

func (q *operationQueue) pop() *OperationHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	h := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return h
}

func (q *operationQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close rejects further submissions and returns the handles still pending.
func (q *operationQueue) close() []*OperationHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	pending := q.items
	q.items = nil
	return pending
}

// Submit enqueues an operation and returns its Pending handle immediately.
// It is safe to call from any goroutine, including lifecycle hooks.
func (s *System) Submit(op Operation) *OperationHandle {
	h, depth, ok := s.queue.push(op)
	if !ok {
		h.resolve(OperationStateCanceled, nil, ErrSystemShutdown)
		return h
	}
	for _, o := range s.observers {
		o.OperationSubmitted(h, depth)
	}
	return h
}

// drain executes queued operations one at a time until ctx is canceled.
// The queue is re-checked after every step so operations appended while
// one runs are picked up in order.
func (s *System) drain(ctx context.Context) {
	defer close(s.drainDone)
	for {
		if h := s.queue.pop(); h != nil {
			s.execute(ctx, h)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-s.queue.wake:
		}
	}
}

func (s *System) execute(ctx context.Context, h *OperationHandle) {
	if ctx.Err() != nil {
		h.resolve(OperationStateCanceled, nil, ErrSystemShutdown)
		return
	}

	start := time.Now()
	for _, o := range s.observers {
		ctx = o.OperationStarted(ctx, h)
	}

	s.mu.Lock()
	h.markRunning()
	result, err := s.dispatchSafely(ctx, h)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).
			Uint64("op_id", h.id).
			Str("op_type", string(h.op.Type)).
			Str("path", h.Path()).
			Msg("Operation failed")
		h.resolve(OperationStateFailed, nil, err)
	} else {
		h.resolve(OperationStateCompleted, result, nil)
	}

	elapsed := time.Since(start)
	for _, o := range s.observers {
		o.OperationFinished(ctx, h, elapsed)
	}
}

// dispatchSafely converts a panic in the scheduler's own bookkeeping into a Failed handle.
func (s *System) dispatchSafely(ctx context.Context, h *OperationHandle) (result *Panel, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug().Str("stack", string(debug.Stack())).Msg("Recovered scheduler panic")
			err = NewInternalError("operation panicked", fmt.Errorf("%v", r)).
				WithOperation(string(h.op.Type)).
				WithPath(h.Path())
		}
	}()

	s.logger.Debug().
		Uint64("op_id", h.id).
		Str("op_type", string(h.op.Type)).
		Str("path", h.Path()).
		Bool("anim", h.op.UseAnimation).
		Msg("Running operation")

	return s.dispatch(ctx, h.op)
}

func (s *System) dispatch(ctx context.Context, op Operation) (*Panel, error) {
	switch op.Type {
	case OperationShow:
		return s.opShow(ctx, op), nil
	case OperationHide:
		return s.opHide(ctx, op), nil
	case OperationClose:
		return s.opClose(ctx, op), nil
	case OperationToggle:
		return s.opToggle(ctx, op), nil
	case OperationDestroy:
		return s.opDestroy(ctx, op), nil
	case OperationDestroyAll:
		s.opDestroyAll(ctx, op.Force)
		return nil, nil
	case OperationShowMain:
		return s.showMain(ctx, op.Path, op.UseAnimation, op.UserData, switchShow), nil
	case OperationSwitchMain:
		return s.showMain(ctx, op.Path, op.UseAnimation, op.UserData, switchReplace), nil
	case OperationGoBackMain:
		return s.goBackMain(ctx, op.UseAnimation), nil
	case OperationLoadPersistent:
		return s.opLoadPersistent(op), nil
	case OperationSetPersistent:
		return s.opSetPersistent(op), nil
	case OperationRefresh:
		s.resolve()
		return nil, nil
	case OperationAutoCloseTop:
		return s.opAutoCloseTop(ctx, op.UseAnimation), nil
	case OperationMaskClick:
		return s.opMaskClick(ctx), nil
	default:
		return nil, NewInternalError("unknown operation type", fmt.Errorf("%q", op.Type))
	}
}

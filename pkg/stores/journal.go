package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
)

// ErrJournalClosed is returned by Flush after Close.
var ErrJournalClosed = errors.New("journal is closed")

// Journal records finished operations and published events of one panel
// system session. It implements engine.Observer; HandleEvent is an
// engine.EventHandler for the event bus.
//
// Records are written by a background writer so the observer callbacks never
// block the scheduler. When the buffer is full new records are dropped.
type Journal struct {
	engine.NopObserver

	store   Store
	session string
	logger  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	records chan func(context.Context)
	done    chan struct{}
	dropped atomic.Uint64
}

// NewJournal opens a session in store and starts the background writer.
func NewJournal(ctx context.Context, store Store, logger zerolog.Logger, bufferSize int) (*Journal, error) {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	j := &Journal{
		store:   store,
		session: uuid.New().String(),
		logger:  logger.With().Str("component", "journal").Logger(),
		records: make(chan func(context.Context), bufferSize),
		done:    make(chan struct{}),
	}
	j.logger = j.logger.With().Str("session", j.session).Logger()

	if err := store.CreateSession(ctx, &Session{ID: j.session, StartedAt: time.Now()}); err != nil {
		return nil, err
	}

	go j.run()
	return j, nil
}

// Session returns the session ID records are written under.
func (j *Journal) Session() string { return j.session }

// Dropped returns the number of records dropped because the buffer was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

func (j *Journal) run() {
	defer close(j.done)
	for write := range j.records {
		write(context.Background())
	}
}

func (j *Journal) enqueue(write func(context.Context)) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return false
	}
	select {
	case j.records <- write:
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

// OperationFinished records the resolved operation.
func (j *Journal) OperationFinished(_ context.Context, h *engine.OperationHandle, elapsed time.Duration) {
	submitted, started, finished := h.Timing()
	rec := &OperationRecord{
		SessionID:    j.session,
		OperationID:  h.ID(),
		Type:         string(h.Type()),
		Path:         h.Path(),
		UseAnimation: h.Operation().UseAnimation,
		State:        string(h.State()),
		SubmittedAt:  submitted,
		FinishedAt:   finished,
		Duration:     elapsed,
	}
	if !started.IsZero() {
		rec.StartedAt = &started
	}
	if finished.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if err := h.Err(); err != nil {
		msg := err.Error()
		rec.Error = &msg

		var ee *engine.EngineError
		if errors.As(err, &ee) {
			class := string(ee.Class)
			rec.ErrorClass = &class
		}
	}

	if !j.enqueue(func(ctx context.Context) {
		if err := j.store.RecordOperation(ctx, rec); err != nil {
			j.logger.Error().Err(err).Uint64("operation_id", rec.OperationID).Msg("Failed to record operation")
		}
	}) {
		j.logger.Warn().Uint64("operation_id", rec.OperationID).Msg("Dropping operation record")
	}
}

// HandleEvent records a bus event.
func (j *Journal) HandleEvent(_ context.Context, event *engine.Event) {
	rec := &EventRecord{
		SessionID:   j.session,
		EventID:     event.ID,
		Type:        string(event.Type),
		Path:        event.Path,
		PanelID:     event.PanelID,
		OperationID: event.OperationID,
		Level:       event.Level,
		Message:     event.Message,
		Timestamp:   event.Timestamp,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if len(event.Details) > 0 {
		if data, err := json.Marshal(event.Details); err == nil {
			details := string(data)
			rec.Details = &details
		} else {
			j.logger.Debug().Err(err).Str("type", rec.Type).Msg("Event details are not JSON-encodable")
		}
	}

	if !j.enqueue(func(ctx context.Context) {
		if err := j.store.RecordEvent(ctx, rec); err != nil {
			j.logger.Error().Err(err).Str("type", rec.Type).Msg("Failed to record event")
		}
	}) {
		j.logger.Warn().Str("type", rec.Type).Msg("Dropping event record")
	}
}

// Flush waits until every record enqueued so far has been written.
func (j *Journal) Flush(ctx context.Context) error {
	ack := make(chan struct{})

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	// The ack must not be dropped, so wait for buffer space.
	select {
	case j.records <- func(context.Context) { close(ack) }:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending records and ends the session. The store is not closed.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.records)
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return fmt.Errorf("journal drain: %w", ctx.Err())
	}

	if dropped := j.dropped.Load(); dropped > 0 {
		j.logger.Warn().Uint64("dropped", dropped).Msg("Journal dropped records")
	}
	return j.store.EndSession(ctx, j.session, time.Now())
}

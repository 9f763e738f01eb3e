package stores

import (
	"context"
	"time"
)

// Session is one run of a panel system.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Metadata  string     `json:"metadata"` // JSON blob
}

// OperationRecord is a finished panel operation.
type OperationRecord struct {
	ID           int64         `json:"id"`
	SessionID    string        `json:"session_id"`
	OperationID  uint64        `json:"operation_id"`
	Type         string        `json:"type"`
	Path         string        `json:"path"`
	UseAnimation bool          `json:"use_animation"`
	State        string        `json:"state"`
	Error        *string       `json:"error,omitempty"`
	ErrorClass   *string       `json:"error_class,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
}

// EventRecord is a published system event.
type EventRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	PanelID     uint64    `json:"panel_id"`
	OperationID uint64    `json:"operation_id"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	Details     *string   `json:"details,omitempty"` // JSON blob
	Timestamp   time.Time `json:"timestamp"`
}

// OperationFilter selects operation records. Zero fields match everything.
type OperationFilter struct {
	SessionID string
	Path      string
	Type      string
	State     string
	Limit     int
	Offset    int
}

// EventFilter selects event records. Zero fields match everything.
type EventFilter struct {
	SessionID string
	Path      string
	Type      string
	Level     string
	Limit     int
	Offset    int
}

// Stats summarizes the journal.
type Stats struct {
	Sessions        int            `json:"sessions"`
	Operations      int            `json:"operations"`
	Events          int            `json:"events"`
	Failed          int            `json:"failed"`
	ByType          map[string]int `json:"by_type"`
	ByState         map[string]int `json:"by_state"`
	AverageDuration time.Duration  `json:"average_duration"`
}

// Store defines the interface for the journal persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)

	// Operation records
	RecordOperation(ctx context.Context, rec *OperationRecord) error
	ListOperations(ctx context.Context, filter OperationFilter) ([]*OperationRecord, error)

	// Event records
	RecordEvent(ctx context.Context, rec *EventRecord) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*EventRecord, error)

	// Maintenance
	Stats(ctx context.Context, sessionID string) (*Stats, error)
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

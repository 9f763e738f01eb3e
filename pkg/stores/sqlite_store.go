package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateSession creates a new session record
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, started_at, ended_at, metadata)
		VALUES (?, ?, ?, ?)
	`

	metadata := session.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.StartedAt.UTC(),
		utcPtr(session.EndedAt),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// EndSession marks a session as ended
func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, endedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}

	return nil
}

// ListSessions lists sessions, newest first
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, started_at, ended_at, metadata
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, pageLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(&session.ID, &session.StartedAt, &session.EndedAt, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// RecordOperation appends an operation record
func (s *SQLiteStore) RecordOperation(ctx context.Context, rec *OperationRecord) error {
	query := `
		INSERT INTO operations (session_id, operation_id, type, path, use_animation, state, error, error_class,
			submitted_at, started_at, finished_at, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		int64(rec.OperationID),
		rec.Type,
		rec.Path,
		rec.UseAnimation,
		rec.State,
		rec.Error,
		rec.ErrorClass,
		rec.SubmittedAt.UTC(),
		utcPtr(rec.StartedAt),
		rec.FinishedAt.UTC(),
		rec.Duration.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation record id: %w", err)
	}
	rec.ID = id

	return nil
}

// ListOperations lists operation records in submission order
func (s *SQLiteStore) ListOperations(ctx context.Context, filter OperationFilter) ([]*OperationRecord, error) {
	query := `
		SELECT id, session_id, operation_id, type, path, use_animation, state, error, error_class,
			submitted_at, started_at, finished_at, duration_us
		FROM operations
		WHERE (? = '' OR session_id = ?)
		  AND (? = '' OR path = ?)
		  AND (? = '' OR type = ?)
		  AND (? = '' OR state = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.SessionID, filter.SessionID,
		filter.Path, filter.Path,
		filter.Type, filter.Type,
		filter.State, filter.State,
		pageLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	records := []*OperationRecord{}
	for rows.Next() {
		rec := &OperationRecord{}
		var opID, durationUS int64
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&opID,
			&rec.Type,
			&rec.Path,
			&rec.UseAnimation,
			&rec.State,
			&rec.Error,
			&rec.ErrorClass,
			&rec.SubmittedAt,
			&rec.StartedAt,
			&rec.FinishedAt,
			&durationUS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		rec.OperationID = uint64(opID)
		rec.Duration = time.Duration(durationUS) * time.Microsecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return records, nil
}

// RecordEvent appends an event record
func (s *SQLiteStore) RecordEvent(ctx context.Context, rec *EventRecord) error {
	query := `
		INSERT INTO events (session_id, event_id, type, path, panel_id, operation_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.EventID,
		rec.Type,
		rec.Path,
		int64(rec.PanelID),
		int64(rec.OperationID),
		rec.Level,
		rec.Message,
		rec.Details,
		rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event record id: %w", err)
	}
	rec.ID = id

	return nil
}

// ListEvents lists event records in publication order
func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]*EventRecord, error) {
	query := `
		SELECT id, session_id, event_id, type, path, panel_id, operation_id, level, message, details, timestamp
		FROM events
		WHERE (? = '' OR session_id = ?)
		  AND (? = '' OR path = ?)
		  AND (? = '' OR type = ?)
		  AND (? = '' OR level = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.SessionID, filter.SessionID,
		filter.Path, filter.Path,
		filter.Type, filter.Type,
		filter.Level, filter.Level,
		pageLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	records := []*EventRecord{}
	for rows.Next() {
		rec := &EventRecord{}
		var panelID, opID int64
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.EventID,
			&rec.Type,
			&rec.Path,
			&panelID,
			&opID,
			&rec.Level,
			&rec.Message,
			&rec.Details,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.PanelID = uint64(panelID)
		rec.OperationID = uint64(opID)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return records, nil
}

// Stats summarizes the journal, optionally restricted to one session.
func (s *SQLiteStore) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	stats := &Stats{
		ByType:  make(map[string]int),
		ByState: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE (? = '' OR id = ?)`, sessionID, sessionID,
	).Scan(&stats.Sessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	var avgUS sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0), AVG(duration_us)
		FROM operations
		WHERE (? = '' OR session_id = ?)
	`, sessionID, sessionID).Scan(&stats.Operations, &stats.Failed, &avgUS); err != nil {
		return nil, fmt.Errorf("failed to count operations: %w", err)
	}
	if avgUS.Valid {
		stats.AverageDuration = time.Duration(avgUS.Float64) * time.Microsecond
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE (? = '' OR session_id = ?)`, sessionID, sessionID,
	).Scan(&stats.Events); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	if err := s.groupCount(ctx, "type", sessionID, stats.ByType); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "state", sessionID, stats.ByState); err != nil {
		return nil, err
	}

	return stats, nil
}

// groupCount counts operations grouped by column, which must be a trusted column name.
func (s *SQLiteStore) groupCount(ctx context.Context, column, sessionID string, into map[string]int) error {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM operations
		WHERE (? = '' OR session_id = ?)
		GROUP BY %[1]s
	`, column)

	rows, err := s.db.QueryContext(ctx, query, sessionID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to group operations by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

// Prune deletes sessions that ended before the cutoff along with their records.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := before.UTC()
	stale := `SELECT id FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`

	var total int64
	for _, stmt := range []string{
		`DELETE FROM operations WHERE session_id IN (` + stale + `)`,
		`DELETE FROM events WHERE session_id IN (` + stale + `)`,
		`DELETE FROM sessions WHERE id IN (` + stale + `)`,
	} {
		result, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to prune journal: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return total, nil
}

// HealthCheck verifies database connectivity
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// Package persistence provides a write-behind SQLite event log. Session
// mutations are recorded fire-and-forget through a channel worker so the
// hot path never blocks on disk.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"devteam/pkg/logx"
)

// Event kinds recorded in the log.
const (
	EventSessionCreated = "session_created"
	EventStatusChanged  = "status_changed"
	EventLogAppended    = "log_appended"
	EventArtifactWrite  = "artifact_written"
	EventHumanResponse  = "human_response"
)

// Event is one row of the append-only session history.
type Event struct {
	ID        int64
	SessionID string
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// request is one unit of work for the write-behind worker.
type request struct {
	event Event
}

// EventLog owns the SQLite connection and the worker draining writes to it.
type EventLog struct {
	db     *sql.DB
	ch     chan request
	done   chan struct{}
	logger *logx.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`

// Open creates (if needed) and opens the event log at dbPath, starts the
// write-behind worker, and returns the log ready for use.
func Open(dbPath string) (*EventLog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := &EventLog{
		db:     db,
		ch:     make(chan request, 256),
		done:   make(chan struct{}),
		logger: logx.NewLogger("persistence"),
	}
	go log.worker()
	return log, nil
}

// worker drains the request channel until Close. A failed insert is
// logged and dropped; the event log is advisory, not authoritative.
func (l *EventLog) worker() {
	defer close(l.done)
	for req := range l.ch {
		if err := l.insert(req.event); err != nil {
			l.logger.Error("failed to persist event %s for session %s: %v",
				req.event.Kind, req.event.SessionID, err)
		}
	}
}

func (l *EventLog) insert(e Event) error {
	_, err := l.db.Exec(
		`INSERT INTO events (session_id, kind, payload) VALUES (?, ?, ?)`,
		e.SessionID, e.Kind, e.Payload)
	return err
}

// Record enqueues one event. It never blocks: when the queue is full the
// event is dropped with a warning rather than stalling the graph.
func (l *EventLog) Record(sessionID, kind string, payload any) {
	if l == nil {
		return
	}
	body := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			l.logger.Warn("failed to encode %s payload: %v", kind, err)
			return
		}
		body = string(data)
	}
	select {
	case l.ch <- request{event: Event{SessionID: sessionID, Kind: kind, Payload: body}}:
	default:
		l.logger.Warn("event queue full, dropping %s for session %s", kind, sessionID)
	}
}

// Events returns the recorded history for one session in insertion order.
func (l *EventLog) Events(sessionID string) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT id, session_id, kind, payload, created_at FROM events
		 WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close drains pending writes and closes the database.
func (l *EventLog) Close() error {
	if l == nil {
		return nil
	}
	close(l.ch)
	<-l.done
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

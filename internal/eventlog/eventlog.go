// Package eventlog persists failsafe events to a local sqlite journal so a
// post-flight review can reconstruct what the failsafe saw and did. Events
// are grouped into sessions, one per arm cycle.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(session_id),
	at TEXT NOT NULL,
	kind TEXT NOT NULL,
	stage_from TEXT NOT NULL DEFAULT '',
	stage_to TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_session_at ON events(session_id, at);
`

// Record is one journaled event row.
type Record struct {
	SessionID string
	At        time.Time
	Kind      string
	StageFrom string
	StageTo   string
	Mode      string
	Detail    string
}

// Store is the sqlite-backed journal. Append is non-blocking: rows go
// through a buffered channel to a single writer goroutine, so the failsafe
// tick never waits on disk.
type Store struct {
	db *sql.DB

	// mu guards session and wasArmed; the web handlers read the session id
	// concurrently with the run loop rotating it.
	mu       sync.Mutex
	session  string
	wasArmed bool

	ch   chan Record
	done chan struct{}
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("eventlog: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: apply schema: %w", err)
	}

	s := &Store{
		db:   db,
		ch:   make(chan Record, 128),
		done: make(chan struct{}),
	}
	if err := s.beginSession(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	go s.writeLoop()
	return s, nil
}

// Close drains pending rows and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	close(s.ch)
	<-s.done
	return s.db.Close()
}

// SessionID returns the current session id.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// BeginSession rotates to a fresh session.
func (s *Store) BeginSession(ctx context.Context) error {
	return s.beginSession(ctx)
}

// ObserveArmed rotates to a fresh session on a disarmed-to-armed edge so
// every flight journals under its own id. Call it before the control tick,
// so events emitted on the arming tick already land in the new session.
func (s *Store) ObserveArmed(ctx context.Context, armed bool) error {
	s.mu.Lock()
	rotate := armed && !s.wasArmed
	s.wasArmed = armed
	s.mu.Unlock()
	if !rotate {
		return nil
	}
	return s.beginSession(ctx)
}

func (s *Store) beginSession(ctx context.Context) error {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("eventlog: begin session: %w", err)
	}
	s.mu.Lock()
	s.session = id
	s.mu.Unlock()
	return nil
}

// Append queues a record for the writer. When the buffer is full the record
// is dropped with a log line; the journal must never stall the control loop.
func (s *Store) Append(r Record) {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	if r.SessionID == "" {
		r.SessionID = s.SessionID()
	}
	select {
	case s.ch <- r:
	default:
		log.Printf("eventlog append dropped kind=%s", r.Kind)
	}
}

// Events returns the rows of a session in append order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, at, kind, stage_from, stage_to, mode, detail
FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var at string
		if err := rows.Scan(&r.SessionID, &at, &r.Kind, &r.StageFrom, &r.StageTo, &r.Mode, &r.Detail); err != nil {
			return nil, fmt.Errorf("eventlog: scan event: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			r.At = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for r := range s.ch {
		_, err := s.db.Exec(`
INSERT INTO events(session_id, at, kind, stage_from, stage_to, mode, detail)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.SessionID, r.At.UTC().Format(time.RFC3339Nano),
			r.Kind, r.StageFrom, r.StageTo, r.Mode, r.Detail)
		if err != nil {
			log.Printf("eventlog write err=%v", err)
		}
	}
}

// Package capture records relayed frames in an embedded SQLite database so
// a tap run can be inspected offline. Payload bytes are stored verbatim;
// whatever failed to decode live can be picked apart later.
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Frame directions, named for the envelope each side emits.
const (
	DirClient = "client"
	DirServer = "server"
)

// Session is one tap run: everything recorded between proxy start and stop.
type Session struct {
	ID           string
	ListenAddr   string
	UpstreamAddr string
	Note         string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// Frame is one recorded wire frame.
type Frame struct {
	Seq           int64
	SessionID     string
	Direction     string
	CorrelationID uint32
	Kind          string // empty when the payload did not decode
	Size          int
	Raw           []byte
	ObservedAt    time.Time
}

// Store is the capture log. modernc.org/sqlite is pure Go, so captures
// work anywhere the tool runs.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // serializes writes (SQLite is single-writer)
}

// Open opens or creates the capture database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// Single connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			listen_addr TEXT NOT NULL,
			upstream_addr TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS frames (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			direction TEXT NOT NULL,
			correlation_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			size INTEGER NOT NULL,
			raw BLOB NOT NULL,
			observed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// CreateSession records the start of a tap run and returns it.
func (s *Store) CreateSession(_ context.Context, listenAddr, upstreamAddr, note string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:           uuid.NewString(),
		ListenAddr:   listenAddr,
		UpstreamAddr: upstreamAddr,
		Note:         note,
		StartedAt:    time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO sessions (id, listen_addr, upstream_addr, note, started_at) VALUES (?, ?, ?, ?, ?)",
		sess.ID, sess.ListenAddr, sess.UpstreamAddr, sess.Note, sess.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession stamps a session's end time.
func (s *Store) EndSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL",
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s not found or already ended", id)
	}
	return nil
}

// Sessions lists recorded sessions, most recent first.
func (s *Store) Sessions(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, listen_addr, upstream_addr, note, started_at, ended_at FROM sessions ORDER BY started_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.ListenAddr, &sess.UpstreamAddr, &sess.Note, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionGet returns one session, or nil when it does not exist.
func (s *Store) SessionGet(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess Session
	err := s.db.QueryRow(
		"SELECT id, listen_addr, upstream_addr, note, started_at, ended_at FROM sessions WHERE id = ?",
		id,
	).Scan(&sess.ID, &sess.ListenAddr, &sess.UpstreamAddr, &sess.Note, &sess.StartedAt, &sess.EndedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// AppendFrame records one relayed frame.
func (s *Store) AppendFrame(_ context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO frames (session_id, direction, correlation_id, kind, size, raw, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.SessionID, f.Direction, f.CorrelationID, f.Kind, f.Size, f.Raw, f.ObservedAt,
	)
	return err
}

// Frames returns a session's frames in the order they were observed.
func (s *Store) Frames(_ context.Context, sessionID string) ([]Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT seq, session_id, direction, correlation_id, kind, size, raw, observed_at
		 FROM frames WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		if err := rows.Scan(&f.Seq, &f.SessionID, &f.Direction, &f.CorrelationID, &f.Kind, &f.Size, &f.Raw, &f.ObservedAt); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// FrameCount returns how many frames a session recorded.
func (s *Store) FrameCount(_ context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM frames WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Package store persists sessions, stabilised intent events, and
// (optionally) raw classified frames to SQLite, for offline replay and
// report generation. It records events, not tuning profiles.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/handwave-data/handwave/internal/hand"
	"github.com/handwave-data/handwave/internal/monitoring"
)

// Store wraps the recorder database.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps the frame-path inserts from blocking readers (report
	// and replay tools attach to live session files).
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SessionRow is one recorded session.
type SessionRow struct {
	ID        string
	StartedAt time.Time
}

// CreateSession registers a session identity.
func (s *Store) CreateSession(id string) error {
	_, err := s.Exec(`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns all recorded sessions, newest first.
func (s *Store) ListSessions() ([]SessionRow, error) {
	rows, err := s.Query(`SELECT session_id, started_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordIntent persists one emitted intent record. Implements the
// pipeline Recorder contract: failures are logged, never surfaced to the
// frame path.
func (s *Store) RecordIntent(session string, ev hand.Intent) {
	_, err := s.Exec(`
		INSERT INTO intent_events
			(session_id, hand_id, x, y, is_pinching, gesture, confidence, synthetic, t_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session, ev.HandID, ev.X, ev.Y, ev.IsPinching, string(ev.Gesture), ev.Confidence, ev.Synthetic, ev.TimestampMs)
	if err != nil {
		monitoring.Logf("[Store] record intent: %v", err)
	}
}

// RecordFrame persists one raw classified frame. Same contract as
// RecordIntent.
func (s *Store) RecordFrame(session string, f hand.Frame) {
	_, err := s.Exec(`
		INSERT INTO raw_frames
			(session_id, hand_id, gesture, confidence, x, y, t_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session, f.HandID, string(f.Gesture), f.Confidence, f.X, f.Y, f.TimestampMs)
	if err != nil {
		monitoring.Logf("[Store] record frame: %v", err)
	}
}

// IntentsForSession returns a session's intent records in emission order.
func (s *Store) IntentsForSession(session string) ([]hand.Intent, error) {
	rows, err := s.Query(`
		SELECT hand_id, x, y, is_pinching, gesture, confidence, synthetic, t_ms
		FROM intent_events WHERE session_id = ? ORDER BY event_id`, session)
	if err != nil {
		return nil, fmt.Errorf("query intents: %w", err)
	}
	defer rows.Close()

	var out []hand.Intent
	for rows.Next() {
		var ev hand.Intent
		var gesture string
		if err := rows.Scan(&ev.HandID, &ev.X, &ev.Y, &ev.IsPinching, &gesture, &ev.Confidence, &ev.Synthetic, &ev.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		ev.Gesture = hand.Gesture(gesture)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FramesForSession returns a session's raw frames in arrival order.
func (s *Store) FramesForSession(session string) ([]hand.Frame, error) {
	rows, err := s.Query(`
		SELECT hand_id, gesture, confidence, x, y, t_ms
		FROM raw_frames WHERE session_id = ? ORDER BY frame_id`, session)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []hand.Frame
	for rows.Next() {
		var f hand.Frame
		var gesture string
		if err := rows.Scan(&f.HandID, &gesture, &f.Confidence, &f.X, &f.Y, &f.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.Gesture = hand.Gesture(gesture)
		out = append(out, f)
	}
	return out, rows.Err()
}

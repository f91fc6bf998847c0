// Package history keeps finished practice sessions in a SQLite database so
// later sessions can be compared with personal bests.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/linuxmatters/vocalrange/internal/practice"
	_ "modernc.org/sqlite"
)

// Session is one finished practice session
type Session struct {
	ID         string
	Mode       string
	HighestHz  float64 // 0 = no ascending success
	LowestHz   float64 // 0 = no descending success
	Cycles     int     // scored cycles, demos excluded
	Passed     int
	RecordedAt time.Time
}

// Best is the widest range reached in a mode
type Best struct {
	HighestHz float64
	LowestHz  float64
	Sessions  int
}

// FromSummary builds a session from a machine summary
func FromSummary(id string, s practice.Summary, at time.Time) Session {
	sess := Session{
		ID:         id,
		Mode:       s.Mode,
		HighestHz:  s.HighestHz,
		LowestHz:   s.LowestHz,
		RecordedAt: at.UTC(),
	}
	for _, c := range s.Cycles {
		if c.Demo {
			continue
		}
		sess.Cycles++
		if c.Success {
			sess.Passed++
		}
	}
	return sess
}

// Store wraps the session database
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	highest_hz REAL NOT NULL DEFAULT 0,
	lowest_hz REAL NOT NULL DEFAULT 0,
	cycles INTEGER NOT NULL DEFAULT 0,
	passed INTEGER NOT NULL DEFAULT 0,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_recorded_at ON sessions(recorded_at);
CREATE INDEX IF NOT EXISTS idx_sessions_mode ON sessions(mode);
`

// Open creates or opens the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record saves a session, replacing any earlier row with the same ID
func (s *Store) Record(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, mode, highest_hz, lowest_hz, cycles, passed, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Mode, sess.HighestHz, sess.LowestHz, sess.Cycles, sess.Passed,
		sess.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, highest_hz, lowest_hz, cycles, passed, recorded_at
		 FROM sessions ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var recordedAt int64
		if err := rows.Scan(&sess.ID, &sess.Mode, &sess.HighestHz, &sess.LowestHz,
			&sess.Cycles, &sess.Passed, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		sess.RecordedAt = time.UnixMilli(recordedAt).UTC()
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Best returns the highest and lowest notes ever reached in mode
func (s *Store) Best(ctx context.Context, mode string) (Best, error) {
	var high, low sql.NullFloat64
	var best Best
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(NULLIF(highest_hz, 0)), MIN(NULLIF(lowest_hz, 0)), COUNT(*)
		 FROM sessions WHERE mode = ?`, mode).Scan(&high, &low, &best.Sessions)
	if err != nil {
		return Best{}, fmt.Errorf("failed to query best range: %w", err)
	}
	best.HighestHz = high.Float64
	best.LowestHz = low.Float64
	return best, nil
}

// Package store persists MountWarden's records in a local SQLite database.
//
// The store is the single shared mutable resource in the system. Every
// mutation path (probe ingest, lifecycle transitions, retention sweeps,
// off-hours flushes, config updates) goes through Write, which serializes
// writers behind one lock and wraps the work in a single transaction so each
// operation is atomic.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

const schema = `
	CREATE TABLE IF NOT EXISTS mount_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		workstation TEXT NOT NULL,
		mount_point TEXT NOT NULL,
		device TEXT,
		filesystem TEXT,
		status TEXT NOT NULL,
		response_time_ms INTEGER,
		error_message TEXT,
		action_taken TEXT,
		users_active INTEGER NOT NULL DEFAULT 0,
		monitored_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_mount_checks_pair_ts ON mount_checks(workstation, mount_point, timestamp);
	CREATE INDEX IF NOT EXISTS idx_mount_checks_ts ON mount_checks(timestamp);

	CREATE TABLE IF NOT EXISTS workstation_state (
		workstation TEXT PRIMARY KEY,
		is_online INTEGER NOT NULL DEFAULT 0,
		last_check TEXT,
		last_successful_check TEXT,
		active_users INTEGER NOT NULL DEFAULT 0,
		user_list TEXT,
		mount_summary TEXT,
		consecutive_failures INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS failure_episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workstation TEXT NOT NULL,
		mount_point TEXT NOT NULL,
		first_failure TEXT NOT NULL,
		last_failure TEXT NOT NULL,
		failure_count INTEGER NOT NULL DEFAULT 1,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_failure_episodes_pair ON failure_episodes(workstation, mount_point, resolved);
	CREATE INDEX IF NOT EXISTS idx_failure_episodes_resolved_at ON failure_episodes(resolved, resolved_at);

	CREATE TABLE IF NOT EXISTS software_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		workstation TEXT NOT NULL,
		software_name TEXT NOT NULL,
		mount_point TEXT,
		is_accessible INTEGER NOT NULL,
		check_time_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_software_checks_ts ON software_checks(timestamp);

	CREATE TABLE IF NOT EXISTS off_hours_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		detected_at TEXT NOT NULL,
		workstation TEXT NOT NULL,
		issue_type TEXT NOT NULL,
		details TEXT,
		notified INTEGER NOT NULL DEFAULT 0,
		notified_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_off_hours_issues_notified ON off_hours_issues(notified);

	CREATE TABLE IF NOT EXISTS retention_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		keep_hours INTEGER NOT NULL DEFAULT 72,
		aggressive_cleanup INTEGER NOT NULL DEFAULT 0
	);

	INSERT OR IGNORE INTO retention_config (id, keep_hours, aggressive_cleanup) VALUES (1, 72, 0);
`

// Store is a SQLite-backed record store.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger

	// mu is the single writer lock shared by all mutation paths.
	mu sync.Mutex
}

// New opens (creating if necessary) the database at dbPath and applies the
// schema.
func New(dbPath string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: logger.With().Str("component", "store").Logger(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("database initialized")

	return s, nil
}

// migrate creates the necessary tables and seeds the retention singleton.
func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Tx is a transaction-scoped view of the store, handed to Write callbacks.
type Tx struct {
	tx *sql.Tx
}

// Write runs fn inside a single transaction while holding the writer lock.
// A non-nil error from fn rolls the transaction back and is returned as-is.
func (s *Store) Write(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: dbtx}); err != nil {
		if rbErr := dbtx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Compact reclaims free pages after large deletions. VACUUM cannot run inside
// a transaction, so this takes the writer lock on its own.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum database: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// formatTime renders a timestamp for storage. All timestamps are stored as
// RFC3339 UTC text so lexicographic comparison matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads a timestamp written by formatTime.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// nullString converts a string to sql.NullString, mapping empty to NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts an optional timestamp to sql.NullString.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullInt converts an optional integer to sql.NullInt64.
func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// timePtr parses a nullable stored timestamp back into *time.Time.
func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// intPtr converts a nullable integer column back into *int64.
func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	n := ni.Int64
	return &n
}

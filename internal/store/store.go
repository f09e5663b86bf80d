// Package store persists the hidden and frozen path lists in SQLite so they
// survive restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/hashicorp/go-hclog"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Set names a persisted path list.
type Set string

const (
	Hidden Set = "hidden_items"
	Frozen Set = "frozen_videos"
)

func (s Set) valid() bool {
	return s == Hidden || s == Frozen
}

// Store is a small SQLite database of path lists.
type Store struct {
	db   *sql.DB
	path string
	log  hclog.Logger
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	connStr := path
	if path != ":memory:" {
		// busy_timeout helps prevent "database is locked" errors
		connStr = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer, and an in-memory database only exists on one connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, path: path, log: logger}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logger.Info("state database ready", "path", path)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hidden_items (
		path TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS frozen_videos (
		path TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	`
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the paths in set, oldest first.
func (s *Store) Load(ctx context.Context, set Set) ([]string, error) {
	if !set.valid() {
		return nil, fmt.Errorf("unknown set %q", set)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT path FROM "+string(set)+" ORDER BY created_at, path")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", set, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan %s: %w", set, err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Replace makes set contain exactly paths.
func (s *Store) Replace(ctx context.Context, set Set, paths []string) (err error) {
	if !set.valid() {
		return fmt.Errorf("unknown set %q", set)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM "+string(set)); err != nil {
		return fmt.Errorf("clear %s: %w", set, err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO "+string(set)+" (path) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare %s: %w", set, err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err = stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("insert %s: %w", set, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", set, err)
	}
	return nil
}

// Saver returns a callback that persists a set's full membership. Failures
// are logged; the in-memory set stays authoritative.
func (s *Store) Saver(set Set) func(paths []string) {
	return func(paths []string) {
		if err := s.Replace(context.Background(), set, paths); err != nil {
			s.log.Error("failed to persist path set", "set", set, "error", err)
			return
		}
		s.log.Debug("path set saved", "set", set, "count", len(paths))
	}
}

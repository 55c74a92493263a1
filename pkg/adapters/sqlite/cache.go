// Package sqlite implements core.LocalCache on an embedded SQLite database.
//
// The database file lives at {dir}/notes-app-db.sqlite and holds two tables:
// notes (the snapshot, ordered by position) and pending_operations (keyed by
// timestamp). The schema version is tracked with PRAGMA user_version.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// DatabaseName is the fixed name of the local database.
	DatabaseName = "notes-app-db"
	// SchemaVersion is the current schema version.
	SchemaVersion = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT,
	pinned     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_position ON notes(position);

CREATE TABLE IF NOT EXISTS pending_operations (
	timestamp INTEGER PRIMARY KEY,
	type      TEXT NOT NULL,
	note      TEXT NOT NULL
);
`

// Cache is a LocalCache backed by SQLite.
type Cache struct {
	db         *sql.DB
	path       string
	logger     *slog.Logger
	errHandler func(error)

	mu     sync.RWMutex
	closed bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorHandler receives queue entries ListOperations had to skip.
// Without it they are logged.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Cache) {
		c.errHandler = fn
	}
}

// Open opens (creating if needed) the database in dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	path := filepath.Join(dir, DatabaseName+".sqlite")
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	c := &Cache{
		db:     db,
		path:   path,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := c.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	var version int
	if err := c.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database %s has schema version %d, newer than supported %d", c.path, version, SchemaVersion)
	}
	if version == SchemaVersion {
		return nil
	}

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", SchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	c.logger.Debug("local database created", "path", c.path, "version", SchemaVersion)
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

func (c *Cache) PersistSnapshot(ctx context.Context, notes []core.Note) error {
	if err := c.check(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notes"); err != nil {
		return fmt.Errorf("failed to clear notes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO notes
		(id, position, title, content, created_at, updated_at, pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range notes {
		var updated sql.NullString
		if n.UpdatedAt != nil {
			updated = sql.NullString{String: n.UpdatedAt.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, n.ID, i, n.Title, n.Content,
			n.CreatedAt.UTC().Format(time.RFC3339Nano), updated, n.Pinned); err != nil {
			return fmt.Errorf("failed to insert note %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (c *Cache) LoadSnapshot(ctx context.Context) ([]core.Note, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id, title, content, created_at, updated_at, pinned
		FROM notes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []core.Note{}
	for rows.Next() {
		var (
			n       core.Note
			created string
			updated sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &created, &updated, &n.Pinned); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		if n.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("note %s: invalid created_at: %w", n.ID, err)
		}
		if updated.Valid {
			t, err := time.Parse(time.RFC3339Nano, updated.String)
			if err != nil {
				return nil, fmt.Errorf("note %s: invalid updated_at: %w", n.ID, err)
			}
			n.UpdatedAt = &t
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (c *Cache) EnqueueOperation(ctx context.Context, op core.PendingOperation) error {
	if err := c.check(); err != nil {
		return err
	}

	data, err := json.Marshal(op.Note)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO pending_operations (timestamp, type, note) VALUES (?, ?, ?)",
		op.Timestamp, string(op.Kind), string(data))
	if err != nil {
		return fmt.Errorf("failed to enqueue operation %d: %w", op.Timestamp, err)
	}
	return nil
}

func (c *Cache) ListOperations(ctx context.Context) ([]core.PendingOperation, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var skipped []error
	defer func() {
		for _, err := range skipped {
			c.report(err)
		}
	}()

	rows, err := c.db.QueryContext(ctx, "SELECT timestamp, type, note FROM pending_operations ORDER BY timestamp")
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	ops := []core.PendingOperation{}
	for rows.Next() {
		var (
			op   core.PendingOperation
			kind string
			data string
		)
		if err := rows.Scan(&op.Timestamp, &kind, &data); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Kind = core.OpKind(kind)
		if err := json.Unmarshal([]byte(data), &op.Note); err != nil {
			// The row stays; the operations after it still replay.
			skipped = append(skipped, fmt.Errorf("failed to decode operation %d: %w", op.Timestamp, err))
			continue
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (c *Cache) report(err error) {
	if c.errHandler != nil {
		c.errHandler(err)
		return
	}
	c.logger.Warn("skipping queue entry", "error", err)
}

func (c *Cache) RemoveOperation(ctx context.Context, timestamp int64) error {
	if err := c.check(); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM pending_operations WHERE timestamp = ?", timestamp); err != nil {
		return fmt.Errorf("failed to remove operation %d: %w", timestamp, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if _, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		c.logger.Warn("failed to checkpoint WAL", "error", err)
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (c *Cache) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	return nil
}

// CacheState exposes internal state for observability.
type CacheState struct {
	Path    string `json:"path"`
	Version int    `json:"schema_version"`
	Notes   int    `json:"notes"`
	Pending int    `json:"pending"`
	Closed  bool   `json:"closed"`
	Error   string `json:"error,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Cache) State() any {
	s := CacheState{Path: c.path, Version: SchemaVersion}
	if err := c.check(); err != nil {
		s.Closed = true
		return s
	}
	err := errors.Join(
		c.db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&s.Notes),
		c.db.QueryRow("SELECT COUNT(*) FROM pending_operations").Scan(&s.Pending),
	)
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// ComponentType implements introspection.Component.
func (c *Cache) ComponentType() string {
	return "cache"
}

var (
	_ core.LocalCache              = (*Cache)(nil)
	_ introspection.Introspectable = (*Cache)(nil)
	_ introspection.Component      = (*Cache)(nil)
)

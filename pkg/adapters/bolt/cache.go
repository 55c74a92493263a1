// Package bolt implements core.LocalCache on a bbolt key/value file.
//
// Buckets:
//
//	notes               note id -> JSON {position, note}
//	pending_operations  big-endian timestamp -> JSON operation
//	meta                "version" -> schema version
package bolt

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/aretw0/introspection"
	bolt "go.etcd.io/bbolt"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// DatabaseName is the fixed name of the local database.
	DatabaseName = "notes-app-db"
	// SchemaVersion is the current schema version.
	SchemaVersion = 1
)

var (
	bucketNotes = []byte("notes")
	bucketOps   = []byte("pending_operations")
	bucketMeta  = []byte("meta")
	keyVersion  = []byte("version")
)

// Cache is a LocalCache backed by bbolt.
type Cache struct {
	db         *bolt.DB
	path       string
	logger     *slog.Logger
	errHandler func(error)
}

// entry is the stored form of a snapshot note. Keys are ids, so the order
// travels in the value.
type entry struct {
	Position int       `json:"position"`
	Note     core.Note `json:"note"`
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

// Open opens (creating if needed) the database in dir. bbolt holds an
// exclusive file lock, so a second process waits up to one second and fails.
func Open(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	path := filepath.Join(dir, DatabaseName+".bolt")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Cache{db: db, path: path, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create meta bucket: %w", err)
		}
		if v := meta.Get(keyVersion); v != nil {
			version, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("invalid schema version %q: %w", v, err)
			}
			if version > SchemaVersion {
				return fmt.Errorf("database %s has schema version %d, newer than supported %d", c.path, version, SchemaVersion)
			}
		}
		for _, name := range [][]byte{bucketNotes, bucketOps} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return meta.Put(keyVersion, []byte(strconv.Itoa(SchemaVersion)))
	})
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

func (c *Cache) PersistSnapshot(ctx context.Context, notes []core.Note) error {
	return c.update(ctx, func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketNotes); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to clear notes: %w", err)
		}
		b, err := tx.CreateBucket(bucketNotes)
		if err != nil {
			return fmt.Errorf("failed to recreate notes bucket: %w", err)
		}
		for i, n := range notes {
			data, err := json.Marshal(entry{Position: i, Note: n})
			if err != nil {
				return fmt.Errorf("failed to encode note %s: %w", n.ID, err)
			}
			if err := b.Put([]byte(n.ID), data); err != nil {
				return fmt.Errorf("failed to store note %s: %w", n.ID, err)
			}
		}
		return nil
	})
}

func (c *Cache) LoadSnapshot(ctx context.Context) ([]core.Note, error) {
	var entries []entry
	err := c.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotes).ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode note %s: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.Position, b.Position)
	})
	notes := make([]core.Note, 0, len(entries))
	for _, e := range entries {
		notes = append(notes, e.Note)
	}
	return notes, nil
}

func (c *Cache) EnqueueOperation(ctx context.Context, op core.PendingOperation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}
	return c.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOps).Put(itob(uint64(op.Timestamp)), data)
	})
}

func (c *Cache) ListOperations(ctx context.Context) ([]core.PendingOperation, error) {
	ops := []core.PendingOperation{}
	var skipped []error
	err := c.view(ctx, func(tx *bolt.Tx) error {
		// Big-endian keys iterate in timestamp order.
		return tx.Bucket(bucketOps).ForEach(func(k, v []byte) error {
			var op core.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				// Kept in the bucket; the entries after it still replay.
				skipped = append(skipped, fmt.Errorf("failed to decode operation %d: %w", btoi(k), err))
				return nil
			}
			ops = append(ops, op)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for _, err := range skipped {
		c.report(err)
	}
	return ops, nil
}

func (c *Cache) report(err error) {
	if c.errHandler != nil {
		c.errHandler(err)
		return
	}
	c.logger.Warn("skipping queue entry", "error", err)
}

func (c *Cache) RemoveOperation(ctx context.Context, timestamp int64) error {
	return c.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOps).Delete(itob(uint64(timestamp)))
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) update(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(c.db.Update(fn))
}

func (c *Cache) view(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(c.db.View(fn))
}

func translate(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return core.ErrClosed
	}
	return err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// CacheState exposes internal state for observability.
type CacheState struct {
	Path    string `json:"path"`
	Version int    `json:"schema_version"`
	Notes   int    `json:"notes"`
	Pending int    `json:"pending"`
	Closed  bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (c *Cache) State() any {
	s := CacheState{Path: c.path, Version: SchemaVersion}
	err := c.db.View(func(tx *bolt.Tx) error {
		s.Notes = tx.Bucket(bucketNotes).Stats().KeyN
		s.Pending = tx.Bucket(bucketOps).Stats().KeyN
		return nil
	})
	s.Closed = errors.Is(err, bolt.ErrDatabaseNotOpen)
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

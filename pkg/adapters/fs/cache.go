// Package fs implements core.LocalCache as plain JSON files, so the queue can be
// inspected by hand and watched for changes made by other processes.
//
// Layout under the cache directory:
//
//	notes-app-db/
//	  snapshot.json                    {"version": 1, "notes": [...]}
//	  pending_operations/<ts>.json     one file per queued operation
package fs

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// DatabaseName is the fixed name of the local database directory.
	DatabaseName = "notes-app-db"
	// SchemaVersion is the current snapshot format version.
	SchemaVersion = 1

	snapshotFile = "snapshot.json"
	opsDir       = "pending_operations"
	opPattern    = "*.json"
)

type snapshot struct {
	Version int         `json:"version"`
	Notes   []core.Note `json:"notes"`
}

// Config configures a Cache.
type Config struct {
	// Dir is the parent directory of the database directory.
	Dir string
	// Logger receives debug and warning output. Defaults to discard.
	Logger *slog.Logger
	// ErrorHandler receives failures of background work (the watcher) and
	// queue entries ListOperations had to skip.
	ErrorHandler func(error)
}

// Cache is a LocalCache stored as JSON files.
type Cache struct {
	root   string
	config Config

	mu            sync.RWMutex
	closed        bool
	watcherActive bool
	lastChange    *time.Time
}

// Open prepares the database directory under cfg.Dir.
func Open(cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	root := filepath.Join(cfg.Dir, DatabaseName)
	if err := os.MkdirAll(filepath.Join(root, opsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{root: root, config: cfg}
	if err := c.checkVersion(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) checkVersion() error {
	data, err := os.ReadFile(c.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	var s struct {
		Version int `json:"version"`
	}
	if json.Unmarshal(data, &s) == nil && s.Version > SchemaVersion {
		return fmt.Errorf("snapshot %s has version %d, newer than supported %d", c.snapshotPath(), s.Version, SchemaVersion)
	}
	return nil
}

// Root returns the database directory.
func (c *Cache) Root() string { return c.root }

func (c *Cache) snapshotPath() string { return filepath.Join(c.root, snapshotFile) }

func (c *Cache) opsPath() string { return filepath.Join(c.root, opsDir) }

// opFilename pads the timestamp so lexical and numeric order agree.
func opFilename(ts int64) string {
	return fmt.Sprintf("%020d.json", ts)
}

func parseOpFilename(name string) (int64, bool) {
	base := strings.TrimSuffix(path.Base(name), ".json")
	ts, err := strconv.ParseInt(base, 10, 64)
	return ts, err == nil
}

func (c *Cache) PersistSnapshot(ctx context.Context, notes []core.Note) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if notes == nil {
		notes = []core.Note{}
	}
	return writeJSONAtomic(c.snapshotPath(), snapshot{Version: SchemaVersion, Notes: notes})
}

// LoadSnapshot reads the snapshot. A corrupted snapshot is discarded: the
// remote store can always rebuild it.
func (c *Cache) LoadSnapshot(ctx context.Context) ([]core.Note, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClosed
	}

	data, err := os.ReadFile(c.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return []core.Note{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		c.config.Logger.Warn("discarding corrupted snapshot", "path", c.snapshotPath(), "error", err)
		return []core.Note{}, nil
	}
	if s.Notes == nil {
		s.Notes = []core.Note{}
	}
	return s.Notes, nil
}

func (c *Cache) EnqueueOperation(ctx context.Context, op core.PendingOperation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	return writeJSONAtomic(filepath.Join(c.opsPath(), opFilename(op.Timestamp)), op)
}

// ListOperations unlike the snapshot never deletes undecodable entries: each
// one is a user action that has not reached the remote store. They are skipped,
// reported and left on disk.
func (c *Cache) ListOperations(ctx context.Context) ([]core.PendingOperation, error) {
	var skipped []error
	defer func() {
		for _, err := range skipped {
			c.report(err)
		}
	}()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClosed
	}

	fsys := os.DirFS(c.opsPath())
	matches, err := doublestar.Glob(fsys, opPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	ops := make([]core.PendingOperation, 0, len(matches))
	for _, name := range matches {
		if _, ok := parseOpFilename(name); !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.opsPath(), name))
		if errors.Is(err, os.ErrNotExist) {
			// Removed by another process since the glob.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read operation %s: %w", name, err)
		}
		var op core.PendingOperation
		if err := json.Unmarshal(data, &op); err != nil {
			skipped = append(skipped, fmt.Errorf("failed to decode operation %s: %w", name, err))
			continue
		}
		ops = append(ops, op)
	}

	slices.SortFunc(ops, func(a, b core.PendingOperation) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return ops, nil
}

func (c *Cache) report(err error) {
	if c.config.ErrorHandler != nil {
		c.config.ErrorHandler(err)
		return
	}
	c.config.Logger.Warn("skipping queue entry", "error", err)
}

func (c *Cache) RemoveOperation(ctx context.Context, timestamp int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	err := os.Remove(filepath.Join(c.opsPath(), opFilename(timestamp)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove operation %d: %w", timestamp, err)
	}
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

var _ core.LocalCache = (*Cache)(nil)

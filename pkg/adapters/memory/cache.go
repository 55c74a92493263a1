// Package memory implements core.LocalCache in process memory. Nothing survives
// a restart; it backs tests and the `--cache memory` setting.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/notesync/pkg/core"
)

// Cache is a volatile LocalCache.
type Cache struct {
	mu       sync.RWMutex
	snapshot []core.Note
	ops      map[int64]core.PendingOperation
	closed   bool
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{ops: make(map[int64]core.PendingOperation)}
}

func (c *Cache) PersistSnapshot(ctx context.Context, notes []core.Note) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	c.snapshot = core.CloneNotes(notes)
	return nil
}

func (c *Cache) LoadSnapshot(ctx context.Context) ([]core.Note, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClosed
	}
	out := core.CloneNotes(c.snapshot)
	if out == nil {
		out = []core.Note{}
	}
	return out, nil
}

func (c *Cache) EnqueueOperation(ctx context.Context, op core.PendingOperation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	op.Note = op.Note.Clone()
	c.ops[op.Timestamp] = op
	return nil
}

func (c *Cache) ListOperations(ctx context.Context) ([]core.PendingOperation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClosed
	}
	out := make([]core.PendingOperation, 0, len(c.ops))
	for _, op := range c.ops {
		op.Note = op.Note.Clone()
		out = append(out, op)
	}
	slices.SortFunc(out, func(a, b core.PendingOperation) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out, nil
}

func (c *Cache) RemoveOperation(ctx context.Context, timestamp int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	delete(c.ops, timestamp)
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// CacheState exposes internal state for observability.
type CacheState struct {
	Notes   int  `json:"notes"`
	Pending int  `json:"pending"`
	Closed  bool `json:"closed"`
}

// State implements introspection.Introspectable.
func (c *Cache) State() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheState{Notes: len(c.snapshot), Pending: len(c.ops), Closed: c.closed}
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

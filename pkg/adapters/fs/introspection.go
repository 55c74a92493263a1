package fs

import (
	"os"
	"time"

	"github.com/aretw0/introspection"
	"github.com/bmatcuk/doublestar/v4"
)

// CacheState exposes internal state for observability.
type CacheState struct {
	Root          string     `json:"root"`
	Version       int        `json:"schema_version"`
	Pending       int        `json:"pending"`
	Closed        bool       `json:"closed"`
	WatcherActive bool       `json:"watcher_active"`
	LastChange    *time.Time `json:"last_change,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Cache) State() any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pending, _ := doublestar.Glob(os.DirFS(c.opsPath()), opPattern)
	return CacheState{
		Root:          c.root,
		Version:       SchemaVersion,
		Pending:       len(pending),
		Closed:        c.closed,
		WatcherActive: c.watcherActive,
		LastChange:    c.lastChange,
	}
}

// ComponentType implements introspection.Component.
func (c *Cache) ComponentType() string {
	return "cache"
}

var _ introspection.Introspectable = (*Cache)(nil)
var _ introspection.Component = (*Cache)(nil)

func (c *Cache) setWatcherActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watcherActive = active
}

func (c *Cache) recordChange() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.lastChange = &now
}

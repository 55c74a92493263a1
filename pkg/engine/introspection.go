package engine

import (
	"github.com/aretw0/introspection"

	"github.com/aretw0/notesync/pkg/connectivity"
)

// EngineState exposes internal state for observability.
type EngineState struct {
	Status        connectivity.Status `json:"status"`
	Online        bool                `json:"online"`
	Syncing       bool                `json:"syncing"`
	Loading       bool                `json:"loading"`
	Submitting    bool                `json:"submitting"`
	Notes         int                 `json:"notes"`
	Subscribers   int                 `json:"subscribers"`
	DroppedEvents int                 `json:"dropped_events"`
	CacheType     string              `json:"cache_type"`
	LastReplay    *ReplayReport       `json:"last_replay,omitempty"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	online := e.conn.Online()
	syncing := e.syncing.Load()
	subs, dropped := e.events.stats()

	cacheType := "unknown"
	if comp, ok := e.cache.(introspection.Component); ok {
		cacheType = comp.ComponentType()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var last *ReplayReport
	if e.lastReplay != nil {
		r := *e.lastReplay
		last = &r
	}
	return EngineState{
		Status:        connectivity.Derive(online, syncing),
		Online:        online,
		Syncing:       syncing,
		Loading:       e.loading > 0,
		Submitting:    e.submitting > 0,
		Notes:         len(e.notes),
		Subscribers:   subs,
		DroppedEvents: dropped,
		CacheType:     cacheType,
		LastReplay:    last,
	}
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "engine"
}

// Status reports online, offline or syncing.
func (e *Engine) Status() connectivity.Status {
	return connectivity.Derive(e.conn.Online(), e.syncing.Load())
}

// Syncing reports whether a replay is in progress.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// Busy reports whether a load or a mutation is in flight.
func (e *Engine) Busy() (loading, submitting bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading > 0, e.submitting > 0
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)

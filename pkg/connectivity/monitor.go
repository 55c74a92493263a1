// Package connectivity tracks whether the remote store is reachable and tells
// interested parties when that changes.
package connectivity

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"
)

// Status is the sync status shown to the user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
)

// Derive combines connectivity and replay activity into a Status. Syncing wins
// over online; offline wins over both.
func Derive(online, syncing bool) Status {
	switch {
	case !online:
		return StatusOffline
	case syncing:
		return StatusSyncing
	default:
		return StatusOnline
	}
}

// Monitor holds the current connectivity and notifies listeners on change.
// It satisfies core.Connectivity.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	changedAt   time.Time
	transitions int
	listeners   map[int]func(online bool)
	nextID      int
	logger      *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor creates a Monitor in the given initial state.
func NewMonitor(initial bool, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		online:    initial,
		changedAt: time.Now(),
		listeners: make(map[int]func(bool)),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a platform signal. Listeners run synchronously outside the lock,
// and only on an actual transition. Their order is unspecified.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.changedAt = time.Now()
	m.transitions++
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range listeners {
		fn(online)
	}
}

// OnTransition registers fn for every change. The returned func unregisters it.
func (m *Monitor) OnTransition(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// MonitorState exposes internal state for observability.
type MonitorState struct {
	Online      bool      `json:"online"`
	ChangedAt   time.Time `json:"changed_at"`
	Transitions int       `json:"transitions"`
	Listeners   int       `json:"listeners"`
}

// State implements introspection.Introspectable.
func (m *Monitor) State() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorState{
		Online:      m.online,
		ChangedAt:   m.changedAt,
		Transitions: m.transitions,
		Listeners:   len(m.listeners),
	}
}

// ComponentType implements introspection.Component.
func (m *Monitor) ComponentType() string {
	return "connectivity"
}

var _ introspection.Introspectable = (*Monitor)(nil)
var _ introspection.Component = (*Monitor)(nil)

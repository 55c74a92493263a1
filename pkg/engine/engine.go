// Package engine is the reconciliation engine: it owns the in-memory record set,
// applies mutations optimistically, sends them to the remote store when online,
// queues them in the local cache when offline, and replays the queue once the
// store is reachable again.
//
// Every mutation follows the same three phases:
//
//  1. apply locally and keep an immutable undo copy,
//  2. attempt the remote effect (or enqueue it),
//  3. reconcile with the store's answer, or apply the undo copy.
//
// The engine lock guards set transformations only and is never held across a
// remote call, so mutations on different notes proceed independently.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/core"
)

// Engine is one instance of the sync engine. The zero value is not usable;
// call New.
type Engine struct {
	cache  core.LocalCache
	remote core.RemoteStore
	conn   core.Connectivity
	opts   options
	events *broker

	mu         sync.Mutex
	notes      []core.Note
	aliases    map[string]string // local id -> server id
	waiting    map[string]bool   // local ids with queued edits awaiting an online create
	loading    int
	submitting int
	lastStamp  int64
	dirty      uint64
	persisted  uint64
	lastReplay *ReplayReport
	closed     bool

	syncing   atomic.Bool
	replayMu  sync.Mutex
	persistMu sync.Mutex
	bg        sync.WaitGroup
}

// New creates an engine over the given collaborators. The record set starts
// empty; call Load to populate it.
func New(cache core.LocalCache, remote core.RemoteStore, conn core.Connectivity, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		cache:   cache,
		remote:  remote,
		conn:    conn,
		opts:    o,
		events:  newBroker(o.eventBuffer),
		notes:   []core.Note{},
		aliases: make(map[string]string),
		waiting: make(map[string]bool),
	}
}

// Notes returns a copy of the in-memory record set in its current order.
func (e *Engine) Notes() []core.Note {
	e.mu.Lock()
	defer e.mu.Unlock()
	return core.CloneNotes(e.notes)
}

// Note returns a copy of one note of the set.
func (e *Engine) Note(id string) (core.Note, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexLocked(id); i >= 0 {
		return e.notes[i].Clone(), true
	}
	return core.Note{}, false
}

// Subscribe returns a channel of engine events and a func that ends the
// subscription. The channel is closed by cancel or by Close.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// Online reports the connectivity the engine acts on.
func (e *Engine) Online() bool {
	return e.conn.Online()
}

// Wait blocks until every background persistence scheduled so far has finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Close waits for background work and ends all subscriptions. It does not close
// the cache; its owner does.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.bg.Wait()
	e.events.close()
	return nil
}

func (e *Engine) emit(t EventType, id string) {
	e.events.publish(Event{Type: t, ID: id, Timestamp: e.opts.now().UnixNano()})
}

// report sends a failure to the diagnostic channel.
func (e *Engine) report(err error) {
	if err == nil {
		return
	}
	if e.opts.errorHandler != nil {
		e.opts.errorHandler(err)
		return
	}
	e.opts.logger.Error("sync engine failure", "error", err)
}

// stamp issues the next operation timestamp: wall clock nanoseconds, bumped
// past the previous stamp so two actions in one tick never share a key.
func (e *Engine) stamp() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts := e.opts.now().UnixNano()
	if ts <= e.lastStamp {
		ts = e.lastStamp + 1
	}
	e.lastStamp = ts
	return ts
}

func (e *Engine) enqueue(ctx context.Context, kind core.OpKind, n core.Note) error {
	op := core.PendingOperation{Kind: kind, Note: n.Clone(), Timestamp: e.stamp()}
	if err := e.cache.EnqueueOperation(ctx, op); err != nil {
		return &core.StorageError{Op: "enqueue", Err: err}
	}
	if kind != core.OpCreate && core.IsLocalID(n.ID) {
		e.mu.Lock()
		e.waiting[n.ID] = true
		e.mu.Unlock()
	}
	e.opts.logger.Debug("operation queued", "op", op.String())
	return nil
}

// persist writes the current set to the cache in the background. Writes are
// serialized and each one takes the set as it is when the write starts, so the
// last write always carries the latest state. A request already covered by a
// later write is skipped.
func (e *Engine) persist() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.dirty++
	gen := e.dirty
	e.bg.Add(1)
	e.mu.Unlock()

	lifecycle.Go(context.Background(), func(ctx context.Context) error {
		defer e.bg.Done()
		e.persistMu.Lock()
		defer e.persistMu.Unlock()

		e.mu.Lock()
		if e.persisted >= gen {
			e.mu.Unlock()
			return nil
		}
		notes := core.CloneNotes(e.notes)
		upTo := e.dirty
		e.mu.Unlock()

		if err := e.cache.PersistSnapshot(ctx, notes); err != nil {
			e.report(&core.StorageError{Op: "persist", Err: err})
			return nil
		}

		e.mu.Lock()
		e.persisted = max(e.persisted, upTo)
		e.mu.Unlock()
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		e.report(fmt.Errorf("persist panic: %w", err))
	}))
}

func (e *Engine) begin(counter *int) {
	e.mu.Lock()
	*counter++
	e.mu.Unlock()
}

func (e *Engine) end(counter *int) {
	e.mu.Lock()
	*counter--
	e.mu.Unlock()
}

// Set transformations. Callers hold e.mu.

func (e *Engine) indexLocked(id string) int {
	return slices.IndexFunc(e.notes, func(n core.Note) bool { return n.ID == id })
}

func (e *Engine) replaceLocked(id string, n core.Note) bool {
	i := e.indexLocked(id)
	if i < 0 {
		return false
	}
	e.notes[i] = n.Clone()
	return true
}

func (e *Engine) removeLocked(id string) (core.Note, bool) {
	i := e.indexLocked(id)
	if i < 0 {
		return core.Note{}, false
	}
	n := e.notes[i]
	e.notes = slices.Delete(e.notes, i, i+1)
	return n, true
}

func (e *Engine) prependLocked(n core.Note) {
	e.notes = slices.Insert(e.notes, 0, n.Clone())
}

// resolveLocked follows the alias of a reconciled temporary id.
func (e *Engine) resolveLocked(id string) string {
	if server, ok := e.aliases[id]; ok {
		return server
	}
	return id
}

func (e *Engine) now() time.Time {
	return e.opts.now().UTC()
}

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/connectivity"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/engine"
)

// ErrWatchUnsupported is returned by WatchQueue for caches that cannot be
// watched.
var ErrWatchUnsupported = errors.New("cache adapter does not support watching")

// stopTimeout bounds how long Close waits for the prober.
const stopTimeout = 5 * time.Second

// Session is one running sync engine with its collaborators.
// One-shot callers use Engine directly and Close; long-running callers also
// call Start.
type Session struct {
	Engine  *engine.Engine
	Monitor *connectivity.Monitor
	Prober  *connectivity.Prober // nil when the remote store cannot be probed
	Cache   core.LocalCache
	Remote  core.RemoteStore

	logger     *slog.Logger
	errHandler func(error)
	ownsCache  bool

	mu      sync.Mutex
	started bool
	closed  bool
	stops   []func()
	bg      sync.WaitGroup
}

// Start makes the session follow connectivity: a transition to online replays
// the queue, and the prober keeps the monitor current. A queue left by an
// earlier run is replayed right away when online.
func (s *Session) Start(ctx context.Context) error {
	replayCtx := context.WithoutCancel(ctx)
	stop := s.Monitor.OnTransition(func(online bool) {
		if !online {
			s.logger.Warn("remote store unreachable, queueing changes")
			return
		}
		s.logger.Info("remote store reachable, replaying queue")
		s.syncAsync(replayCtx)
	})

	s.mu.Lock()
	if s.closed || s.started {
		s.mu.Unlock()
		stop()
		if s.closed {
			return core.ErrClosed
		}
		return errors.New("session already started")
	}
	s.started = true
	s.stops = append(s.stops, stop)
	s.mu.Unlock()

	if s.Prober != nil {
		if err := s.Prober.Start(ctx); err != nil {
			return fmt.Errorf("start prober: %w", err)
		}
	}

	if s.Monitor.Online() {
		s.syncAsync(replayCtx)
	}
	return nil
}

// syncAsync replays the queue in the background and reloads the record set
// from the store when anything was delivered. Close waits for it.
func (s *Session) syncAsync(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer s.bg.Done()
		report := s.Engine.Replay(ctx)
		if report.Succeeded == 0 || !s.Monitor.Online() {
			return nil
		}
		if _, err := s.Engine.Load(ctx, core.DefaultQuery()); err != nil {
			return fmt.Errorf("reload after replay: %w", err)
		}
		return nil
	}, lifecycle.WithErrorHandler(s.report))
}

// WatchQueue replays the queue whenever another process adds an operation
// while online. Only the fs adapter can be watched. The returned channel
// mirrors the queue events and closes with ctx.
func (s *Session) WatchQueue(ctx context.Context) (<-chan fs.QueueEvent, error) {
	fc, ok := s.Cache.(*fs.Cache)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	events, err := fc.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan fs.QueueEvent, cap(events))
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		for e := range events {
			if e.Kind == fs.QueueEnqueued && s.Monitor.Online() {
				s.syncAsync(context.WithoutCancel(ctx))
			}
			select {
			case out <- e:
			default:
				s.logger.Debug("queue event dropped", "event", e.String())
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(s.report))
	return out, nil
}

// Close stops the prober, waits for background work and closes the cache when
// the session opened it. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	s.bg.Wait()

	var errs []error
	if started && s.Prober != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := s.Prober.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("stop prober: %w", err))
		}
		cancel()
	}
	if err := s.Engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownsCache {
		if err := s.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) report(err error) {
	if s.errHandler != nil {
		s.errHandler(err)
		return
	}
	s.logger.Error("session failure", "error", err)
}

// SessionState exposes internal state for observability.
type SessionState struct {
	Engine  any `json:"engine"`
	Monitor any `json:"monitor"`
	Cache   any `json:"cache,omitempty"`
	Prober  any `json:"prober,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Session) State() any {
	state := SessionState{
		Engine:  s.Engine.State(),
		Monitor: s.Monitor.State(),
	}
	if c, ok := s.Cache.(introspection.Introspectable); ok {
		state.Cache = c.State()
	}
	if s.Prober != nil {
		state.Prober = s.Prober.Stats()
	}
	return state
}

// ComponentType implements introspection.Component.
func (s *Session) ComponentType() string {
	return "session"
}

func cacheType(c core.LocalCache) string {
	if comp, ok := c.(introspection.Component); ok {
		return comp.ComponentType()
	}
	return fmt.Sprintf("%T", c)
}

var _ introspection.Introspectable = (*Session)(nil)
var _ introspection.Component = (*Session)(nil)

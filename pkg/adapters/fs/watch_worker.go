package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// QueueEventKind tells whether an operation entered or left the queue.
type QueueEventKind string

const (
	QueueEnqueued QueueEventKind = "ENQUEUED"
	QueueRemoved  QueueEventKind = "REMOVED"
)

// QueueEvent reports a change of the pending operation queue on disk, made by
// this process or any other sharing the cache directory.
type QueueEvent struct {
	Kind      QueueEventKind
	Timestamp int64
}

// String implements lifecycle.Event.
func (e QueueEvent) String() string {
	return fmt.Sprintf("%s %d", e.Kind, e.Timestamp)
}

// DebounceWindow is how long the watcher waits for a burst of events on the
// same operation file to settle.
const DebounceWindow = 50 * time.Millisecond

// Watch starts a watcher on the pending operation queue. The returned channel
// is closed once ctx is done and the watcher has stopped.
func (c *Cache) Watch(ctx context.Context) (<-chan QueueEvent, error) {
	events := make(chan QueueEvent, 16)
	w := newWatchWorker(c, events)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	lifecycle.Go(ctx, func(context.Context) error {
		<-w.done
		close(events)
		return nil
	})
	return events, nil
}

type watchWorker struct {
	*worker.BaseWorker
	cache     *Cache
	events    chan<- QueueEvent
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
	done      chan struct{}
}

func newWatchWorker(c *Cache, events chan<- QueueEvent) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("queue-watcher"),
		cache:      c,
		events:     events,
		done:       make(chan struct{}),
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.cache.opsPath()); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.cache.opsPath(), err)
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(DebounceWindow)
	w.cache.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"path":              w.cache.opsPath(),
		}
	})
}

// queueEvent maps a filesystem event to a queue change. Temp files of atomic
// writes and anything that is not an operation file are ignored.
func (w *watchWorker) queueEvent(event fsnotify.Event) (QueueEvent, bool) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, TempFilePrefix) {
		return QueueEvent{}, false
	}
	if ok, _ := doublestar.Match(opPattern, name); !ok {
		return QueueEvent{}, false
	}
	ts, ok := parseOpFilename(name)
	if !ok {
		return QueueEvent{}, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return QueueEvent{Kind: QueueEnqueued, Timestamp: ts}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return QueueEvent{Kind: QueueRemoved, Timestamp: ts}, true
	}
	return QueueEvent{}, false
}

// sendEvent hands the event to the debouncer. Delivery gives up when ctx ends.
func (w *watchWorker) sendEvent(ctx context.Context, event QueueEvent) {
	w.debouncer.add(event, func(e QueueEvent) {
		w.cache.recordChange()
		select {
		case w.events <- e:
		case <-ctx.Done():
		}
	})
}

func (w *watchWorker) handleWatcherError(err error) {
	w.cache.config.Logger.Error("fsnotify error", "error", err)
	if w.cache.config.ErrorHandler != nil {
		w.cache.config.ErrorHandler(err)
	}
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	defer close(w.done)
	// In-flight deliveries finish before the owner closes the channel.
	defer w.debouncer.stopAndWait(5 * time.Second)
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			// Stack traces only at debug level.
			if w.cache.config.Logger.Enabled(ctx, slog.LevelDebug) {
				w.cache.config.Logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.cache.config.Logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.cache.setWatcherActive(false)
	defer w.watcher.Close()

	return w.loop(ctx)
}

func (w *watchWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.cache.config.Logger.Debug("queue event received", "name", event.Name, "op", event.Op.String())
			if qe, ok := w.queueEvent(event); ok {
				w.sendEvent(ctx, qe)
			}

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}

package fs

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of events for the same operation file. Editors and
// atomic renames produce several fsnotify events per logical change; only the
// last one within the window is delivered.
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, timers: make(map[int64]*time.Timer)}
}

func (d *debouncer) add(e QueueEvent, deliver func(QueueEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[e.Timestamp]; ok && t.Stop() {
		// The pending delivery was cancelled before firing.
		d.wg.Done()
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.window, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[e.Timestamp] == t {
			delete(d.timers, e.Timestamp)
		}
		d.mu.Unlock()
		deliver(e)
	})
	d.timers[e.Timestamp] = t
}

// stopAndWait rejects new events, cancels pending ones and waits for
// deliveries already running, up to timeout.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for ts, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, ts)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

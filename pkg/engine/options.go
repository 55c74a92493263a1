package engine

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// DefaultEventBuffer is the per-subscriber event buffer.
const DefaultEventBuffer = 100

type options struct {
	logger       *slog.Logger
	errorHandler func(error)
	eventBuffer  int
	now          func() time.Time
	newID        func() string
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorHandler receives every failure that is not returned to a caller:
// rolled back updates and deletes, replay failures and storage failures.
// Without one, failures are logged.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithEventBuffer sets the buffer size of each subscription channel.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		if size >= 0 {
			o.eventBuffer = size
		}
	}
}

// WithClock overrides the time source used for creation times and operation
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how temporary identifiers are minted. Generated ids
// must satisfy core.IsLocalID.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.DiscardHandler),
		eventBuffer: DefaultEventBuffer,
		now:         time.Now,
		newID:       core.NewLocalID,
	}
}

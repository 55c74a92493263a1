package notesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/engine"
)

// --- Types ---

// Note is a user note.
type Note = core.Note

// NoteInput is the payload of a create.
type NoteInput = core.NoteInput

// NotePatch is a partial update.
type NotePatch = core.NotePatch

// Query describes one page request.
type Query = core.Query

// Page is the result of a Query.
type Page = core.Page

// Event is a change reported by the engine.
type Event = engine.Event

// ReplayReport summarizes one replay run.
type ReplayReport = engine.ReplayReport

// Session is a running engine with its cache, remote store and connectivity.
type Session = platform.Session

// Config is the file configuration.
type Config = platform.Config

// --- Configuration ---

// Option configures a Session.
type Option = platform.Option

// WithConfig applies a file configuration. Options given after it win.
func WithConfig(cfg Config) Option {
	return platform.WithConfig(cfg)
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAdapter selects the cache adapter by name (sqlite, bolt, fs, memory).
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithCacheDir sets the directory of the local cache.
func WithCacheDir(dir string) Option {
	return platform.WithCacheDir(dir)
}

// WithCache injects a local cache.
func WithCache(cache core.LocalCache) Option {
	return platform.WithCache(cache)
}

// WithRemote injects the remote store.
func WithRemote(remote core.RemoteStore) Option {
	return platform.WithRemote(remote)
}

// WithBaseURL sets the URL of the remote store.
func WithBaseURL(url string) Option {
	return platform.WithBaseURL(url)
}

// WithProjectID targets a MockAPI project.
func WithProjectID(id string) Option {
	return platform.WithProjectID(id)
}

// WithTimeout bounds every remote call.
func WithTimeout(d time.Duration) Option {
	return platform.WithTimeout(d)
}

// WithSearchParam sets the query parameter the remote store filters titles by.
func WithSearchParam(name string) Option {
	return platform.WithSearchParam(name)
}

// WithErrorHandler receives failures that are reported rather than returned.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// WithEventBuffer sets the buffer of each engine subscription.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithInitialOnline fixes the connectivity at startup instead of probing.
func WithInitialOnline(online bool) Option {
	return platform.WithInitialOnline(online)
}

// WithProbeInterval sets how often the remote store is probed while online.
func WithProbeInterval(d time.Duration) Option {
	return platform.WithProbeInterval(d)
}

// WithMaxBackoff caps the probe backoff while offline.
func WithMaxBackoff(d time.Duration) Option {
	return platform.WithMaxBackoff(d)
}

// WithDevSafety controls the sandbox used under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factory ---

// New opens a Session.
func New(ctx context.Context, opts ...Option) (*Session, error) {
	return platform.New(ctx, opts...)
}

// LoadConfig reads a configuration file (empty path for none) and applies
// environment overrides.
func LoadConfig(path string) (Config, error) {
	return platform.LoadConfig(path)
}

// ErrOffline is returned by Session.Sync when the remote store cannot be
// reached.
var ErrOffline = platform.ErrOffline

// ErrConfigNotFound is returned by FindConfig when no .notesync.yaml exists
// above the start directory.
var ErrConfigNotFound = platform.ErrConfigNotFound

// FindConfig looks upwards from startDir for .notesync.yaml.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}

// DefaultQuery loads the first 1000 notes, newest first.
func DefaultQuery() Query {
	return core.DefaultQuery()
}

package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// options holds the internal configuration of a Session.
type options struct {
	logger        *slog.Logger
	adapter       string
	cacheDir      string
	cache         core.LocalCache
	remote        core.RemoteStore
	baseURL       string
	projectID     string
	timeout       time.Duration
	searchParam   string
	errorHandler  func(error)
	eventBuffer   int
	initialOnline *bool
	probeInterval time.Duration
	maxBackoff    time.Duration
	devSafety     bool
}

// Option configures a Session.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter:   AdapterSQLite,
		devSafety: true,
	}
}

// WithConfig applies a file configuration. Options given after it win.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.Remote.BaseURL != "" {
			o.baseURL = cfg.Remote.BaseURL
		}
		if cfg.Remote.ProjectID != "" {
			o.projectID = cfg.Remote.ProjectID
		}
		if cfg.Remote.Timeout > 0 {
			o.timeout = cfg.Remote.Timeout
		}
		if cfg.Remote.SearchParam != "" {
			o.searchParam = cfg.Remote.SearchParam
		}
		if cfg.Cache.Adapter != "" {
			o.adapter = cfg.Cache.Adapter
		}
		if cfg.Cache.Dir != "" {
			o.cacheDir = cfg.Cache.Dir
		}
		if cfg.Connectivity.ProbeInterval > 0 {
			o.probeInterval = cfg.Connectivity.ProbeInterval
		}
		if cfg.Connectivity.MaxBackoff > 0 {
			o.maxBackoff = cfg.Connectivity.MaxBackoff
		}
		if cfg.Events.Buffer > 0 {
			o.eventBuffer = cfg.Events.Buffer
		}
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAdapter selects the cache adapter by name (sqlite, bolt, fs, memory).
// Defaults to sqlite.
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithCacheDir sets the directory the cache adapter opens its database in.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithCache injects a cache, bypassing the adapter. The session does not
// close an injected cache.
func WithCache(cache core.LocalCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithRemote injects the remote store, bypassing the HTTP client.
func WithRemote(remote core.RemoteStore) Option {
	return func(o *options) {
		o.remote = remote
	}
}

// WithBaseURL sets the URL of the remote store.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithProjectID derives the base URL from a MockAPI project id when no base URL
// is set.
func WithProjectID(id string) Option {
	return func(o *options) {
		o.projectID = id
	}
}

// WithTimeout bounds every remote call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithSearchParam sets the query parameter the remote store filters titles by.
func WithSearchParam(name string) Option {
	return func(o *options) {
		o.searchParam = name
	}
}

// WithErrorHandler receives failures that are reported rather than returned:
// rollbacks, replay failures, storage and watcher errors.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithEventBuffer sets the buffer of each engine subscription.
// Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithInitialOnline fixes the connectivity at startup instead of probing the
// remote store.
func WithInitialOnline(online bool) Option {
	return func(o *options) {
		o.initialOnline = &online
	}
}

// WithProbeInterval sets how often the remote store is probed while online.
func WithProbeInterval(d time.Duration) Option {
	return func(o *options) {
		o.probeInterval = d
	}
}

// WithMaxBackoff caps the probe backoff while offline.
func WithMaxBackoff(d time.Duration) Option {
	return func(o *options) {
		o.maxBackoff = d
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or
// `go test`. By default (true) the cache directory is re-rooted under the
// system temp dir so development runs never touch a real cache.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

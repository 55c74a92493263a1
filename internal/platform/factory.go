package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/notesync/pkg/adapters/bolt"
	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/adapters/sqlite"
	"github.com/aretw0/notesync/pkg/connectivity"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/engine"
	"github.com/aretw0/notesync/pkg/remote"
)

// ErrNoRemote is returned by New when neither a remote store, a base URL nor a
// project id is configured.
var ErrNoRemote = errors.New("no remote store configured (set remote.base_url or remote.project_id)")

// New wires a Session: cache, remote client, connectivity monitor, prober and
// engine. Connectivity starts from WithInitialOnline or, without it, from one
// probe of the remote store.
//
//	s, err := platform.New(ctx, platform.WithBaseURL(url), platform.WithAdapter("bolt"))
func New(ctx context.Context, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	rs, err := openRemote(o)
	if err != nil {
		return nil, err
	}

	cache, owned := o.cache, false
	if cache == nil {
		cache, err = OpenCache(ctx, o.adapter, o.cacheDir, opts...)
		if err != nil {
			return nil, err
		}
		owned = true
	}

	s := &Session{
		Cache:      cache,
		Remote:     rs,
		logger:     o.logger,
		ownsCache:  owned,
		errHandler: o.errorHandler,
	}

	pinger, canProbe := rs.(Pinger)
	online := true
	switch {
	case o.initialOnline != nil:
		online = *o.initialOnline
	case canProbe:
		online = pinger.Ping(ctx) == nil
	}
	s.Monitor = connectivity.NewMonitor(online, connectivity.WithMonitorLogger(o.logger))

	if canProbe {
		var popts []connectivity.ProberOption
		popts = append(popts, connectivity.WithProberLogger(o.logger))
		if o.probeInterval > 0 {
			popts = append(popts, connectivity.WithInterval(o.probeInterval))
		}
		if o.maxBackoff > 0 {
			popts = append(popts, connectivity.WithMaxBackoff(o.maxBackoff))
		}
		s.Prober = connectivity.NewProber(s.Monitor, pinger.Ping, popts...)
	}

	eopts := []engine.Option{engine.WithLogger(o.logger)}
	if o.errorHandler != nil {
		eopts = append(eopts, engine.WithErrorHandler(o.errorHandler))
	}
	if o.eventBuffer > 0 {
		eopts = append(eopts, engine.WithEventBuffer(o.eventBuffer))
	}
	s.Engine = engine.New(cache, rs, s.Monitor, eopts...)

	o.logger.Debug("session ready", "adapter", cacheType(cache), "online", online)
	return s, nil
}

// Pinger is implemented by remote stores that can be probed for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func openRemote(o *options) (core.RemoteStore, error) {
	if o.remote != nil {
		return o.remote, nil
	}

	url := o.baseURL
	if url == "" && o.projectID != "" {
		url = remote.MockAPIURL(o.projectID)
	}
	if url == "" {
		return nil, ErrNoRemote
	}

	copts := []remote.Option{remote.WithLogger(o.logger)}
	if o.timeout > 0 {
		copts = append(copts, remote.WithTimeout(o.timeout))
	}
	if o.searchParam != "" {
		copts = append(copts, remote.WithSearchParam(o.searchParam))
	}
	return remote.New(url, copts...), nil
}

// OpenCache opens the named cache adapter in dir. Options supply the logger,
// the error handler and the dev safety setting.
func OpenCache(ctx context.Context, adapter, dir string, opts ...Option) (core.LocalCache, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	if adapter == AdapterMemory {
		return memory.New(), nil
	}

	useTemp := o.devSafety && IsDevRun()
	resolved := ResolveCacheDir(dir, useTemp)
	if useTemp {
		o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "original_path", dir, "resolved_path", resolved)
	}

	var (
		cache core.LocalCache
		err   error
	)
	switch adapter {
	case AdapterSQLite, "":
		var c *sqlite.Cache
		if c, err = sqlite.Open(ctx, resolved, sqlite.WithLogger(o.logger), sqlite.WithErrorHandler(o.errorHandler)); err == nil {
			cache = c
		}
	case AdapterBolt:
		var c *bolt.Cache
		if c, err = bolt.Open(resolved, bolt.WithLogger(o.logger), bolt.WithErrorHandler(o.errorHandler)); err == nil {
			cache = c
		}
	case AdapterFS:
		var c *fs.Cache
		if c, err = fs.Open(fs.Config{Dir: resolved, Logger: o.logger, ErrorHandler: o.errorHandler}); err == nil {
			cache = c
		}
	default:
		err = fmt.Errorf("unknown adapter: %s", adapter)
	}
	if err != nil {
		return nil, err
	}
	return cache, nil
}

package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/cenkalti/backoff"
)

const (
	// DefaultProbeInterval is the pause between probes while online.
	DefaultProbeInterval = 30 * time.Second
	// DefaultMaxBackoff caps the pause between probes while offline.
	DefaultMaxBackoff = 2 * time.Minute
)

// ProbeFunc checks the remote store. A nil error means reachable.
type ProbeFunc func(ctx context.Context) error

// Prober turns periodic probes into Monitor signals. While online it probes at a
// fixed interval; while offline it backs off exponentially, so a dead network
// is not hammered.
type Prober struct {
	*worker.BaseWorker
	monitor    *Monitor
	probe      ProbeFunc
	interval   time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc

	mu        sync.Mutex
	probes    int
	failures  int
	lastProbe time.Time
	lastErr   error
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the probe interval while online.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxBackoff caps the offline backoff.
func WithMaxBackoff(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.maxBackoff = d
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(logger *slog.Logger) ProberOption {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProber creates a Prober feeding m.
func NewProber(m *Monitor, probe ProbeFunc, opts ...ProberOption) *Prober {
	p := &Prober{
		BaseWorker: worker.NewBaseWorker("connectivity-prober"),
		monitor:    m,
		probe:      probe,
		interval:   DefaultProbeInterval,
		maxBackoff: DefaultMaxBackoff,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeOnce runs a single probe and records the result on the monitor.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	err := p.probe(ctx)

	p.mu.Lock()
	p.probes++
	p.lastProbe = time.Now()
	p.lastErr = err
	if err != nil {
		p.failures++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug("probe failed", "error", err)
	}
	if ctx.Err() != nil {
		// Shutting down; the failure says nothing about the network.
		return p.monitor.Online()
	}
	p.monitor.Set(err == nil)
	return err == nil
}

func (p *Prober) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := p.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("prober already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.SetStatus(worker.StatusRunning)
	return p.StartFunc(runCtx, p.run)
}

func (p *Prober) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.StopRequested = true
		p.cancel()
	}
	return p.BaseWorker.Stop(ctx)
}

func (p *Prober) State() worker.State {
	return p.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"interval":          p.interval.String(),
		}
	})
}

func (p *Prober) run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(time.Second, p.interval)
	b.MaxInterval = p.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		wait := p.interval
		if !p.ProbeOnce(ctx) {
			wait = b.NextBackOff()
		} else {
			b.Reset()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// ProberStats are the counters of a Prober.
type ProberStats struct {
	Probes    int       `json:"probes"`
	Failures  int       `json:"failures"`
	LastProbe time.Time `json:"last_probe"`
	LastError string    `json:"last_error,omitempty"`
}

// Stats returns the probe counters.
func (p *Prober) Stats() ProberStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := ProberStats{Probes: p.probes, Failures: p.failures, LastProbe: p.lastProbe}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

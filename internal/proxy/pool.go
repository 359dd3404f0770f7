package proxy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxHealthy is the number of healthy endpoints kept after probing.
	DefaultMaxHealthy = 5

	// DefaultProbeConcurrency bounds concurrent probes during Initialize.
	DefaultProbeConcurrency = 16
)

// Pool holds the healthy endpoints and a circular rotation cursor.
// Methods are safe for concurrent use, but a pool is meant to have one
// user; parallel crawls take their own cursor with Fork.
type Pool struct {
	mu      sync.Mutex
	healthy []*Endpoint
	failed  []*Endpoint
	cursor  int

	prober      Prober
	maxHealthy  int
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithProber sets the prober used by Initialize.
func WithProber(p Prober) PoolOption {
	return func(pool *Pool) {
		pool.prober = p
	}
}

// WithMaxHealthy sets how many healthy endpoints are kept.
func WithMaxHealthy(n int) PoolOption {
	return func(pool *Pool) {
		pool.maxHealthy = n
	}
}

// WithProbeConcurrency sets how many probes run at once.
func WithProbeConcurrency(n int) PoolOption {
	return func(pool *Pool) {
		pool.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(pool *Pool) {
		pool.logger = logger
	}
}

// NewPool returns an empty pool. An empty pool is valid and operates in
// no-proxy mode.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		prober:      NewHTTPProber(),
		maxHealthy:  DefaultMaxHealthy,
		concurrency: DefaultProbeConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxHealthy < 1 {
		p.maxHealthy = DefaultMaxHealthy
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// Initialize probes candidates and keeps up to the configured maximum of
// healthy endpoints, in candidate order. No new check starts once enough
// endpoints are healthy, but checks already running finish, so an earlier
// slow candidate still wins over a later one.
// Initialize never fails: when nothing passes, the pool stays empty and the
// crawl proceeds without a proxy.
func (p *Pool) Initialize(ctx context.Context, candidates []Endpoint) {
	results := make([]*Endpoint, len(candidates))
	var healthyCount atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i := range candidates {
		g.Go(func() error {
			if healthyCount.Load() >= int64(p.maxHealthy) || ctx.Err() != nil {
				return nil
			}
			ep := candidates[i]
			latency, err := p.prober.Probe(ctx, ep)
			ep.LastCheck = p.now()
			if err != nil {
				ep.Health = HealthFailed
				ep.ConsecutiveFailures++
				p.logger.Debug("proxy probe failed", "proxy", ep.String(), "error", err)
				results[i] = &ep
				return nil
			}
			ep.Health = HealthHealthy
			ep.Latency = latency
			results[i] = &ep
			healthyCount.Add(1)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probe goroutines never return errors

	p.mu.Lock()
	defer p.mu.Unlock()

	p.healthy = nil
	p.failed = nil
	p.cursor = 0
	for _, ep := range results {
		if ep == nil {
			continue
		}
		if ep.Health == HealthHealthy && len(p.healthy) < p.maxHealthy {
			p.healthy = append(p.healthy, ep)
			continue
		}
		if ep.Health == HealthFailed {
			p.failed = append(p.failed, ep)
		}
	}

	if len(p.healthy) == 0 {
		p.logger.Warn("no healthy proxy found, continuing without proxy", "candidates", len(candidates))
		return
	}
	p.logger.Info("proxy pool ready", "healthy", len(p.healthy), "candidates", len(candidates))
}

// Add appends already-trusted endpoints, such as a local Tor listener,
// bypassing probing.
func (p *Pool) Add(eps ...Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range eps {
		ep := eps[i]
		ep.Health = HealthHealthy
		ep.LastCheck = p.now()
		p.healthy = append(p.healthy, &ep)
	}
}

// Current returns the endpoint under the cursor.
func (p *Pool) Current() (Endpoint, Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.healthy) == 0 {
		return Endpoint{}, StatusUnavailable
	}
	return *p.healthy[p.cursor], StatusOK
}

// Rotate advances the cursor circularly and returns the new current
// endpoint. Calling Rotate Size() times returns to the starting endpoint.
func (p *Pool) Rotate() (Endpoint, Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.healthy) == 0 {
		return Endpoint{}, StatusUnavailable
	}
	p.cursor = (p.cursor + 1) % len(p.healthy)
	return *p.healthy[p.cursor], StatusOK
}

// MarkFailed demotes the endpoint with the given address. A demoted
// endpoint leaves the rotation for the lifetime of the pool; the cursor
// keeps pointing at the endpoint that followed it.
func (p *Pool) MarkFailed(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, ep := range p.healthy {
		if ep.Address != address {
			continue
		}
		ep.Health = HealthFailed
		ep.ConsecutiveFailures++
		ep.LastCheck = p.now()
		p.failed = append(p.failed, ep)
		p.healthy = append(p.healthy[:i], p.healthy[i+1:]...)

		switch {
		case len(p.healthy) == 0:
			p.cursor = 0
		case i < p.cursor:
			p.cursor--
		case p.cursor >= len(p.healthy):
			p.cursor = 0
		}
		p.logger.Warn("proxy demoted", "proxy", ep.String(), "remaining", len(p.healthy))
		return
	}
}

// Size returns the number of healthy endpoints.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.healthy)
}

// Healthy returns a copy of the healthy endpoints in rotation order.
func (p *Pool) Healthy() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Endpoint, len(p.healthy))
	for i, ep := range p.healthy {
		out[i] = *ep
	}
	return out
}

// Failed returns a copy of the demoted endpoints.
func (p *Pool) Failed() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Endpoint, len(p.failed))
	for i, ep := range p.failed {
		out[i] = *ep
	}
	return out
}

// Fork returns an independent pool over a copy of the healthy endpoints,
// with its cursor offset by offset. Demotions in the fork do not affect
// the parent.
func (p *Pool) Fork(offset int) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()

	child := &Pool{
		prober:      p.prober,
		maxHealthy:  p.maxHealthy,
		concurrency: p.concurrency,
		logger:      p.logger,
		now:         p.now,
	}
	for _, ep := range p.healthy {
		cp := *ep
		child.healthy = append(child.healthy, &cp)
	}
	if n := len(child.healthy); n > 0 {
		child.cursor = ((offset % n) + n) % n
	}
	return child
}

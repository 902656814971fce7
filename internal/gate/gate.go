// Package gate provides per-provider admission control: each external data
// provider gets an independent queue bounding concurrent in-flight requests
// and requests per rolling time window. Every outbound call acquires a slot
// before dispatch, so one provider's generous limits never starve another's
// strict per-minute quota.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vendaslab/prospect-cli/internal/resilience"
)

// Limits parameterizes one provider's admission queue.
type Limits struct {
	// MaxConcurrent bounds in-flight requests. Default: 1.
	MaxConcurrent int
	// MaxPerWindow bounds admissions per Window. Default: 3.
	MaxPerWindow int
	// Window is the rolling window length. Default: 1 minute.
	Window time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = 1
	}
	if l.MaxPerWindow <= 0 {
		l.MaxPerWindow = 3
	}
	if l.Window <= 0 {
		l.Window = time.Minute
	}
	return l
}

// Gate is one provider's admission queue. Callers blocked on admission are
// released in FIFO order as capacity frees (runtime wait queues on both the
// limiter and the slot channel are FIFO).
type Gate struct {
	name    string
	slots   chan struct{}
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// New creates a Gate for the named provider.
func New(name string, limits Limits, retry resilience.RetryConfig) *Gate {
	limits = limits.withDefaults()
	interval := limits.Window / time.Duration(limits.MaxPerWindow)
	return &Gate{
		name:    name,
		slots:   make(chan struct{}, limits.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   retry,
	}
}

// Name returns the provider name this gate guards.
func (g *Gate) Name() string { return g.name }

// Do admits the call through the gate and runs fn under the retry policy:
// transient failures (timeouts, 5xx) are retried with exponential backoff,
// terminal errors surface immediately. The concurrency slot is held for the
// whole retry sequence so backoff pauses still count against the provider's
// in-flight budget.
func Do[T any](ctx context.Context, g *Gate, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := g.limiter.Wait(ctx); err != nil {
		return zero, eris.Wrapf(err, "gate: %s admission", g.name)
	}

	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return zero, eris.Wrapf(ctx.Err(), "gate: %s admission", g.name)
	}
	defer func() { <-g.slots }()

	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(g.name, operation)
	}
	return resilience.DoVal(ctx, cfg, fn)
}

// Registry owns the long-lived gates, one per provider, constructed once at
// process start and injected into the orchestrators.
type Registry struct {
	mu    sync.RWMutex
	gates map[string]*Gate
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*Gate)}
}

// Register adds a gate for the named provider, replacing any existing one.
func (r *Registry) Register(name string, limits Limits, retry resilience.RetryConfig) *Gate {
	g := New(name, limits, retry)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[name] = g
	return g
}

// Get returns the gate for a provider, or nil when none is registered.
func (r *Registry) Get(name string) *Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gates[name]
}

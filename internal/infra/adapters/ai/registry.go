package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/infra/metrics"
)

// Limiter bounds provider request rates. The Redis fixed-window limiter
// satisfies this; tests plug in fakes.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ProviderStats accumulates per-provider dispatch accounting.
type ProviderStats struct {
	Requests       int64
	Errors         int64
	TotalLatencyMs int64
	TotalCost      float64
}

// ProviderStatus is the health/metrics view served by the API.
type ProviderStatus struct {
	Name         string               `json:"name"`
	Capabilities adapter.Capabilities `json:"capabilities"`
	Healthy      bool                 `json:"healthy"`
	Stats        ProviderStats        `json:"stats"`
}

// Gateway is an explicit provider registry constructed once at startup and
// passed by reference; there is deliberately no package-level instance.
// Provider selection is always explicit, failover is the caller's business.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]adapter.InferenceProvider
	stats     map[string]*ProviderStats

	limiter    Limiter
	rateLimit  int
	rateWindow time.Duration
	maxRetries int
	retryPause time.Duration
	log        *zerolog.Logger
}

type GatewayOption func(*Gateway)

// WithRateLimit bounds dispatches per provider within a rolling window.
func WithRateLimit(l Limiter, limit int, window time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.limiter = l
		g.rateLimit = limit
		g.rateWindow = window
	}
}

// WithRetry sets the bounded retry budget for transient provider errors.
func WithRetry(maxRetries int, pause time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.maxRetries = maxRetries
		g.retryPause = pause
	}
}

func NewGateway(log *zerolog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		providers:  map[string]adapter.InferenceProvider{},
		stats:      map[string]*ProviderStats{},
		maxRetries: 2,
		retryPause: time.Second,
		log:        log,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Register(p adapter.InferenceProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.Name()] = p
	g.stats[p.Name()] = &ProviderStats{}
	g.log.Info().Str("provider", p.Name()).Msg("inference provider registered")
}

func (g *Gateway) lookup(name string) (adapter.InferenceProvider, *ProviderStats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
	}
	return p, g.stats[name], nil
}

// Dispatch forwards one inference call to the named provider, measuring
// latency and usage. Transient failures (rate limit, connection) are retried
// with backoff up to the configured budget; auth errors fail immediately.
func (g *Gateway) Dispatch(ctx context.Context, providerName string, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	p, stats, err := g.lookup(providerName)
	if err != nil {
		return nil, err
	}

	caps := p.Capabilities()
	if len(req.Image) > 0 && !caps.Vision {
		return nil, fmt.Errorf("%w: provider %q has no vision capability", domain.ErrInvalidArgument, providerName)
	}

	if g.limiter != nil {
		ok, lerr := g.limiter.Allow(ctx, "inference:"+providerName, g.rateLimit, g.rateWindow)
		if lerr != nil {
			g.log.Warn().Err(lerr).Str("provider", providerName).Msg("rate limiter unavailable, letting call through")
		} else if !ok {
			return nil, fmt.Errorf("%w: local budget for %q exhausted", domain.ErrProviderRateLimited, providerName)
		}
	}

	var res *adapter.ProcessResult
	for attempt := 0; ; attempt++ {
		start := time.Now()
		res, err = p.Process(ctx, req)
		latency := time.Since(start)

		g.record(providerName, stats, res, latency, err)

		if err == nil {
			return res, nil
		}
		if !transient(err) || attempt >= g.maxRetries {
			return nil, err
		}
		g.log.Warn().Err(err).Str("provider", providerName).Int("attempt", attempt+1).Msg("transient provider error, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.retryPause * time.Duration(attempt+1)):
		}
	}
}

func (g *Gateway) record(name string, stats *ProviderStats, res *adapter.ProcessResult, latency time.Duration, err error) {
	g.mu.Lock()
	stats.Requests++
	stats.TotalLatencyMs += latency.Milliseconds()
	if err != nil {
		stats.Errors++
	} else if res != nil {
		stats.TotalCost += res.CostEstimate
	}
	g.mu.Unlock()

	if err != nil {
		metrics.ObserveInference(name, 0, 0, 0, int(latency.Milliseconds()), false)
		return
	}
	metrics.ObserveInference(name,
		res.Usage.PromptTokens, res.Usage.CompletionTokens, res.CostEstimate,
		int(latency.Milliseconds()), true)
}

// transient reports whether an error is worth a backoff retry.
func transient(err error) bool {
	return errors.Is(err, domain.ErrProviderRateLimited) || errors.Is(err, domain.ErrProviderUnavailable)
}

// Snapshot probes every registered provider and returns its status. Health
// probes run with a short timeout so a dead provider cannot hang the call.
func (g *Gateway) Snapshot(ctx context.Context) []ProviderStatus {
	g.mu.RLock()
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	g.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(names))
	for _, name := range names {
		p, stats, err := g.lookup(name)
		if err != nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		healthy := p.HealthCheck(probeCtx) == nil
		cancel()

		g.mu.RLock()
		snap := *stats
		g.mu.RUnlock()
		out = append(out, ProviderStatus{
			Name:         name,
			Capabilities: p.Capabilities(),
			Healthy:      healthy,
			Stats:        snap,
		})
	}
	return out
}

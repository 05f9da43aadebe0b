package ai

import (
	"context"

	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

var _ adapter.InferenceProvider = (*limitedProvider)(nil)

// limitedProvider bounds concurrent Process calls with a semaphore. Spec
// metadata (name, capabilities, cost) passes straight through.
type limitedProvider struct {
	inner adapter.InferenceProvider
	sem   chan struct{}
}

func NewLimitedProvider(inner adapter.InferenceProvider, maxConcurrent int) adapter.InferenceProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Name() string { return l.inner.Name() }

func (l *limitedProvider) Capabilities() adapter.Capabilities { return l.inner.Capabilities() }

func (l *limitedProvider) HealthCheck(ctx context.Context) error { return l.inner.HealthCheck(ctx) }

func (l *limitedProvider) CostEstimate(usage adapter.Usage) float64 {
	return l.inner.CostEstimate(usage)
}

func (l *limitedProvider) Process(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Process(ctx, req)
}

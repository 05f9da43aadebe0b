package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

type fakeProvider struct {
	name        string
	caps        adapter.Capabilities
	processFunc func(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error)
}

func (f *fakeProvider) Name() string                             { return f.name }
func (f *fakeProvider) Capabilities() adapter.Capabilities       { return f.caps }
func (f *fakeProvider) HealthCheck(ctx context.Context) error    { return nil }
func (f *fakeProvider) CostEstimate(usage adapter.Usage) float64 { return 0 }
func (f *fakeProvider) Process(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	return f.processFunc(ctx, req)
}

func newTestGateway(opts ...GatewayOption) *Gateway {
	log := zerolog.Nop()
	return NewGateway(&log, opts...)
}

func TestGateway_UnknownProvider(t *testing.T) {
	t.Parallel()

	g := newTestGateway()
	_, err := g.Dispatch(context.Background(), "nope", adapter.ProcessRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestGateway_DispatchSuccessUpdatesStats(t *testing.T) {
	t.Parallel()

	g := newTestGateway()
	g.Register(&fakeProvider{
		name: "fake",
		caps: adapter.Capabilities{Text: true},
		processFunc: func(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
			return &adapter.ProcessResult{RawContent: "{}", CostEstimate: 0.002}, nil
		},
	})

	if _, err := g.Dispatch(context.Background(), "fake", adapter.ProcessRequest{Prompt: "p"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	statuses := g.Snapshot(context.Background())
	if len(statuses) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(statuses))
	}
	s := statuses[0]
	if s.Stats.Requests != 1 || s.Stats.Errors != 0 {
		t.Errorf("stats = %+v", s.Stats)
	}
	if s.Stats.TotalCost != 0.002 {
		t.Errorf("cost = %v", s.Stats.TotalCost)
	}
	if !s.Healthy {
		t.Error("fake provider should be healthy")
	}
}

func TestGateway_VisionCapabilityEnforced(t *testing.T) {
	t.Parallel()

	g := newTestGateway()
	g.Register(&fakeProvider{
		name: "textonly",
		caps: adapter.Capabilities{Text: true},
		processFunc: func(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
			return &adapter.ProcessResult{RawContent: "{}"}, nil
		},
	})

	_, err := g.Dispatch(context.Background(), "textonly", adapter.ProcessRequest{
		Prompt: "read this", Image: []byte{0x89, 0x50},
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected capability rejection, got %v", err)
	}
}

func TestGateway_RetriesTransientOnly(t *testing.T) {
	t.Parallel()

	calls := 0
	g := newTestGateway(WithRetry(2, time.Millisecond))
	g.Register(&fakeProvider{
		name: "flaky",
		caps: adapter.Capabilities{Text: true},
		processFunc: func(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("%w: 503", domain.ErrProviderUnavailable)
			}
			return &adapter.ProcessResult{RawContent: "{}"}, nil
		},
	})

	if _, err := g.Dispatch(context.Background(), "flaky", adapter.ProcessRequest{Prompt: "p"}); err != nil {
		t.Fatalf("dispatch should succeed on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	// Auth errors never retry.
	authCalls := 0
	g.Register(&fakeProvider{
		name: "locked",
		caps: adapter.Capabilities{Text: true},
		processFunc: func(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
			authCalls++
			return nil, fmt.Errorf("%w: 401", domain.ErrProviderAuth)
		},
	})
	if _, err := g.Dispatch(context.Background(), "locked", adapter.ProcessRequest{Prompt: "p"}); !errors.Is(err, domain.ErrProviderAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if authCalls != 1 {
		t.Errorf("auth errors must fail fast, got %d attempts", authCalls)
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func TestGateway_RateLimiterBlocksDispatch(t *testing.T) {
	t.Parallel()

	g := newTestGateway(WithRateLimit(denyLimiter{}, 1, time.Minute), WithRetry(0, time.Millisecond))
	g.Register(&fakeProvider{
		name: "fake",
		caps: adapter.Capabilities{Text: true},
		processFunc: func(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
			t.Error("process should not be reached when the limiter denies")
			return nil, nil
		},
	})

	_, err := g.Dispatch(context.Background(), "fake", adapter.ProcessRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrProviderRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

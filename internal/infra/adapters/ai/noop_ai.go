package ai

import (
	"context"
	"encoding/json"

	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

var _ adapter.InferenceProvider = (*NoopProvider)(nil)

// NoopProvider returns a fixed extraction. Useful for dev mode and wiring
// tests without credentials.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

func (n *NoopProvider) Name() string { return "noop" }

func (n *NoopProvider) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Text: true, Vision: true, StructuredOutput: true}
}

func (n *NoopProvider) HealthCheck(ctx context.Context) error { return nil }

func (n *NoopProvider) CostEstimate(usage adapter.Usage) float64 { return 0 }

func (n *NoopProvider) Process(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	doc, _ := json.Marshal(map[string]any{
		"vendor_name":  "Noop Vendor",
		"date":         "2025-01-01",
		"total_amount": 0.0,
		"line_items":   []any{},
		"confidence":   1.0,
	})
	return &adapter.ProcessResult{RawContent: string(doc)}, nil
}

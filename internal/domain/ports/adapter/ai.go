package adapter

import "context"

// Capabilities advertises what a provider can do. The gateway refuses to
// forward vision or structured-output requests to providers lacking them.
type Capabilities struct {
	Text             bool
	Vision           bool
	StructuredOutput bool
}

// Usage as reported (or estimated) for a single inference call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ProcessRequest is one inference call. Image and Schema are optional;
// Schema, when set, is a JSON-Schema map the provider should constrain its
// output with (best effort, the normalizer tolerates prose anyway).
type ProcessRequest struct {
	Prompt      string
	Image       []byte
	ImageMIME   string
	Schema      map[string]any
	MaxTokens   int
	Temperature float64
}

// ProcessResult carries the provider's raw output. RawContent may be a JSON
// document, a fenced blob, or prose; normalization is the caller's problem.
type ProcessResult struct {
	RawContent   string
	Usage        Usage
	CostEstimate float64
}

// InferenceProvider is the contract every AI backend satisfies.
type InferenceProvider interface {
	Name() string
	Capabilities() Capabilities
	HealthCheck(ctx context.Context) error
	// CostEstimate converts a usage report to an estimated cost in USD.
	CostEstimate(usage Usage) float64
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
}

// InferenceDispatcher routes a request to a named registered provider. The
// gateway registry satisfies this.
type InferenceDispatcher interface {
	Dispatch(ctx context.Context, providerName string, req ProcessRequest) (*ProcessResult, error)
}

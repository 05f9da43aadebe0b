package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

var _ adapter.InferenceProvider = (*GeminiProvider)(nil)

// GeminiProvider uses the official genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, baseURL, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: c, model: model}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Text: true, Vision: true, StructuredOutput: true}
}

func (g *GeminiProvider) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return classifyGeminiErr(err)
	}
	return nil
}

var geminiPricePerMTokens = struct{ in, out float64 }{in: 0.10, out: 0.40}

func (g *GeminiProvider) CostEstimate(usage adapter.Usage) float64 {
	return float64(usage.PromptTokens)/1e6*geminiPricePerMTokens.in +
		float64(usage.CompletionTokens)/1e6*geminiPricePerMTokens.out
}

func (g *GeminiProvider) Process(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mime, Data: req.Image},
		})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.Schema != nil {
		// Gemini honors a response MIME type; the schema itself travels in
		// the prompt, and the normalizer cleans up whatever comes back.
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}
	if text == "" {
		return nil, errors.New("gemini: empty candidate content")
	}

	usage := adapter.Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &adapter.ProcessResult{
		RawContent:   text,
		Usage:        usage,
		CostEstimate: g.CostEstimate(usage),
	}, nil
}

// classifyGeminiErr folds SDK errors into the dispatch taxonomy by message
// inspection; the SDK does not expose typed errors for these cases.
func classifyGeminiErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "permission") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return fmt.Errorf("%w: %v", domain.ErrProviderAuth, err)
	case strings.Contains(msg, "quota") || strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return fmt.Errorf("%w: %v", domain.ErrProviderRateLimited, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
}

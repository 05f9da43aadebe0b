package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

var _ adapter.InferenceProvider = (*OpenAIProvider)(nil)

// OpenAIProvider talks to any OpenAI-compatible Chat Completions endpoint.
type OpenAIProvider struct {
	apiKey string
	base   string // e.g. https://api.openai.com/v1
	model  string
	client *http.Client
}

func NewOpenAIProvider(apiKey, base, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		base:   base,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Text: true, Vision: true, StructuredOutput: true}
}

func (o *OpenAIProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	return classifyStatus(resp.StatusCode)
}

// openaiPricePerMTokens is a rough USD price table for cost estimates; exact
// billing lives with the provider.
var openaiPricePerMTokens = struct{ in, out float64 }{in: 0.15, out: 0.60}

func (o *OpenAIProvider) CostEstimate(usage adapter.Usage) float64 {
	return float64(usage.PromptTokens)/1e6*openaiPricePerMTokens.in +
		float64(usage.CompletionTokens)/1e6*openaiPricePerMTokens.out
}

type oaContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type oaMessage struct {
	Role    string          `json:"role"`
	Content []oaContentPart `json:"content"`
}

func (o *OpenAIProvider) Process(ctx context.Context, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	parts := []oaContentPart{{Type: "text", Text: req.Prompt}}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		part := oaContentPart{Type: "image_url"}
		part.ImageURL = &struct {
			URL string `json:"url"`
		}{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)}
		parts = append(parts, part)
	}

	body := map[string]any{
		"model":    o.model,
		"messages": []oaMessage{{Role: "user", Content: parts}},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.Schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "document_extraction",
				"schema": req.Schema,
			},
		}
	}

	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return nil, errors.New("openai: no choice content")
	}

	usage := adapter.Usage{
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}
	if usage.PromptTokens == 0 {
		// Some compatible gateways omit usage; estimate locally.
		usage.PromptTokens = EstimateTokens(req.Prompt, o.model)
		usage.TotalTokens = usage.PromptTokens
	}
	return &adapter.ProcessResult{
		RawContent:   payload.Choices[0].Message.Content,
		Usage:        usage,
		CostEstimate: o.CostEstimate(usage),
	}, nil
}

// classifyStatus maps HTTP status codes onto the dispatch error taxonomy.
func classifyStatus(code int) error {
	switch {
	case code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", domain.ErrProviderAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", domain.ErrProviderRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w: http %d", domain.ErrProviderUnavailable, code)
	default:
		return fmt.Errorf("provider http %d", code)
	}
}

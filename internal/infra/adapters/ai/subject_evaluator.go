package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

const evaluationPrompt = `You are re-evaluating an inventory item. Given its
name and evaluation history, assess its current state (condition, continued
relevance, estimated remaining value). Respond with a single JSON object:
{"result": "<one-paragraph assessment>", "confidence": <0..1>}`

// SubjectEvaluator asks a provider to re-assess a subject. Responses outside
// the expected shape degrade to a low-confidence result rather than an error,
// so one odd reply never wedges the daily queue.
type SubjectEvaluator struct {
	dispatcher adapter.InferenceDispatcher
	provider   string
	log        *zerolog.Logger
}

var _ adapter.SubjectEvaluator = (*SubjectEvaluator)(nil)

func NewSubjectEvaluator(dispatcher adapter.InferenceDispatcher, provider string, logger *zerolog.Logger) *SubjectEvaluator {
	return &SubjectEvaluator{dispatcher: dispatcher, provider: provider, log: logger}
}

func (e *SubjectEvaluator) Evaluate(ctx context.Context, s *model.Subject) (string, float64, error) {
	var history strings.Builder
	for _, h := range s.History {
		fmt.Fprintf(&history, "- %s: %s (confidence %.2f)\n", h.Date.Format("2006-01-02"), h.Result, h.Confidence)
	}
	prompt := fmt.Sprintf("%s\n\nItem: %s\nHistory:\n%s", evaluationPrompt, s.Name, history.String())

	res, err := e.dispatcher.Dispatch(ctx, e.provider, adapter.ProcessRequest{
		Prompt: prompt,
		Schema: map[string]any{
			"type":     "object",
			"required": []string{"result", "confidence"},
			"properties": map[string]any{
				"result":     map[string]any{"type": "string"},
				"confidence": map[string]any{"type": "number"},
			},
		},
	})
	if err != nil {
		return "", 0, err
	}

	var parsed struct {
		Result     string  `json:"result"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(res.RawContent), &parsed); err != nil || parsed.Result == "" {
		e.log.Warn().Str("subject_id", s.ID).Msg("unparseable evaluation response, flagging for review")
		return strings.TrimSpace(res.RawContent), 0.1, nil
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		parsed.Confidence = 0.1
	}
	return parsed.Result, parsed.Confidence, nil
}

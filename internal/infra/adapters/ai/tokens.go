package ai

import "github.com/pkoukk/tiktoken-go"

// EstimateTokens counts prompt tokens with the model's tiktoken encoding,
// falling back to the chars/4 rule when the model is unknown to the library.
func EstimateTokens(text, model string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

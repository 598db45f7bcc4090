package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// TokenCounter estimates how many tokens a transcript will cost.
// Counts are observational only; transcripts are never truncated.
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter loads the tiktoken encoding for model. The encoding file
// is downloaded on first use unless TIKTOKEN_CACHE_DIR already holds it.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
	}
	return &TokenCounter{encoding: encoding}, nil
}

// NewTokenCounterWithTokenizer builds a counter around an existing tokenizer.
func NewTokenCounterWithTokenizer(t Tokenizer) *TokenCounter {
	return &TokenCounter{encoding: t}
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

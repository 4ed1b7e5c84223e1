package llm

import (
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt sizes. All supported chat models are close
// enough to GPT-4 tokenization for budgeting purposes.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter builds a counter with the GPT-4 encoding.
func NewTokenCounter() *TokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{codec: codec}
}

// Count returns the token count for text, falling back to the 4-chars-per-
// token estimate when no codec is available.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountRequest returns the combined token count of a request's system and
// user segments.
func (tc *TokenCounter) CountRequest(req Request) int {
	return tc.Count(req.System) + tc.Count(req.Prompt)
}

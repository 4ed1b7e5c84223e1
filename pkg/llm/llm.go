// Package llm provides structured generation against LLM providers with
// ordered failover. A Generator takes a prompt and decodes the model's JSON
// reply into a caller-supplied shape; the chain tries providers in
// configured order and reports a ProviderError only when all of them fail.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is one structured-generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator produces a structured object for a request. Implementations
// decode the model output as strict JSON into out (a pointer).
type Generator interface {
	Generate(ctx context.Context, req Request, out any) error
	Name() string
}

// ProviderError reports that generation failed at a provider (or, for the
// chain, at every provider).
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DecodeJSON extracts the first JSON object from raw model output and
// unmarshals it into out. Models frequently wrap JSON in prose or code
// fences; everything outside the outermost braces is ignored.
func DecodeJSON(raw string, out any) error {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "```"); i >= 0 {
		text = strings.TrimPrefix(text[i+3:], "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

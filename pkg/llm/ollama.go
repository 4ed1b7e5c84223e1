package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"copilot/pkg/logx"
)

// OllamaGenerator generates structured output via a local Ollama server.
type OllamaGenerator struct {
	client *api.Client
	model  string
	logger *logx.Logger
}

// NewOllamaGenerator creates a generator against the given host URL.
func NewOllamaGenerator(hostURL, model string) (*OllamaGenerator, error) {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", hostURL, err)
	}
	return &OllamaGenerator{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
		logger: logx.NewLogger("llm.ollama"),
	}, nil
}

func (g *OllamaGenerator) Name() string { return "ollama" }

// Generate sends a non-streaming chat request and decodes the JSON reply.
func (g *OllamaGenerator) Generate(ctx context.Context, req Request, out any) error {
	messages := []api.Message{}
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := g.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		g.logger.Warn("generation failed kind=%s: %v", ClassifyError(err), err)
		return &ProviderError{Provider: g.Name(), Err: err}
	}
	if response.Message.Content == "" {
		return &ProviderError{Provider: g.Name(), Err: fmt.Errorf("empty response")}
	}

	if err := DecodeJSON(response.Message.Content, out); err != nil {
		return &ProviderError{Provider: g.Name(), Err: err}
	}
	return nil
}

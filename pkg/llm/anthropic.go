package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"copilot/pkg/logx"
)

// AnthropicGenerator generates structured output via the Anthropic API.
type AnthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
	logger *logx.Logger
}

// NewAnthropicGenerator creates a generator bound to one model.
func NewAnthropicGenerator(apiKey, model string) *AnthropicGenerator {
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logx.NewLogger("llm.anthropic"),
	}
}

func (g *AnthropicGenerator) Name() string { return "anthropic" }

// Generate sends the request and decodes the JSON reply into out.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request, out any) error {
	params := anthropic.MessageNewParams{
		Model: g.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		g.logger.Warn("generation failed kind=%s: %v", ClassifyError(err), err)
		return &ProviderError{Provider: g.Name(), Err: err}
	}
	if resp == nil || len(resp.Content) == 0 {
		return &ProviderError{Provider: g.Name(), Err: fmt.Errorf("empty response")}
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if err := DecodeJSON(text, out); err != nil {
		return &ProviderError{Provider: g.Name(), Err: err}
	}
	return nil
}

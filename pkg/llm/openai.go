package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"copilot/pkg/logx"
)

// OpenAIGenerator generates structured output via the OpenAI chat API.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	logger *logx.Logger
}

// NewOpenAIGenerator creates a generator bound to one model.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logx.NewLogger("llm.openai"),
	}
}

func (g *OpenAIGenerator) Name() string { return "openai" }

// Generate sends the request and decodes the JSON reply into out.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request, out any) error {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		g.logger.Warn("generation failed kind=%s: %v", ClassifyError(err), err)
		return &ProviderError{Provider: g.Name(), Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return &ProviderError{Provider: g.Name(), Err: fmt.Errorf("empty response")}
	}

	if err := DecodeJSON(resp.Choices[0].Message.Content, out); err != nil {
		return &ProviderError{Provider: g.Name(), Err: err}
	}
	return nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"copilot/pkg/config"
	"copilot/pkg/logx"
)

// Chain tries generators in order until one succeeds. All failures are
// accumulated into the final ProviderError so callers can see every
// provider's reason.
type Chain struct {
	generators []Generator
	logger     *logx.Logger
}

// NewChain builds a failover chain. At least one generator is required.
func NewChain(generators ...Generator) (*Chain, error) {
	if len(generators) == 0 {
		return nil, errors.New("llm chain needs at least one generator")
	}
	return &Chain{generators: generators, logger: logx.NewLogger("llm")}, nil
}

// NewChainFromConfig builds the chain described by the config's ordered
// provider list.
func NewChainFromConfig(cfg config.LLMConfig) (*Chain, error) {
	var generators []Generator
	for _, p := range cfg.Providers {
		switch p.Name {
		case config.ProviderAnthropic:
			generators = append(generators, NewAnthropicGenerator(p.APIKey(), p.Model))
		case config.ProviderOpenAI:
			generators = append(generators, NewOpenAIGenerator(p.APIKey(), p.Model))
		case config.ProviderOllama:
			g, err := NewOllamaGenerator(p.BaseURL, p.Model)
			if err != nil {
				return nil, err
			}
			generators = append(generators, g)
		case config.ProviderOffline:
			generators = append(generators, Offline{})
		default:
			return nil, fmt.Errorf("unknown provider %q", p.Name)
		}
	}
	return NewChain(generators...)
}

func (c *Chain) Name() string { return "chain" }

// Generate tries each provider in order. Cancellation stops the chain
// immediately; every other failure moves on to the next provider.
func (c *Chain) Generate(ctx context.Context, req Request, out any) error {
	var failures []string
	for _, g := range c.generators {
		if err := ctx.Err(); err != nil {
			return &ProviderError{Provider: c.Name(), Err: err}
		}
		err := g.Generate(ctx, req, out)
		if err == nil {
			return nil
		}
		c.logger.Debug("provider %s failed (%s), trying next", g.Name(), ClassifyError(err))
		failures = append(failures, fmt.Sprintf("%s: %v", g.Name(), err))
	}
	return &ProviderError{
		Provider: c.Name(),
		Err:      fmt.Errorf("all providers failed: %s", strings.Join(failures, "; ")),
	}
}

// Offline is a generator that always fails with a ProviderError. It gives
// keyless and air-gapped deployments a working chain: every advisory node
// degrades to its deterministic templated output.
type Offline struct{}

func (Offline) Name() string { return "offline" }

func (Offline) Generate(_ context.Context, _ Request, _ any) error {
	return &ProviderError{Provider: "offline", Err: errors.New("offline generator has no model")}
}

// Package config provides configuration loading and validation for the copilot.
//
// Configuration is loaded once at startup from a YAML file, validated, and
// passed by value to the components that need it. There is no global config
// instance: every constructor receives the sections it uses, so tests can
// build configs inline without touching the filesystem.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in the LLM section.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderOffline   = "offline"
)

// Default model identifiers per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultOllamaModel    = "qwen2.5:7b-instruct"
)

// ProviderConfig describes one structured-generation provider in failover order.
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LLMConfig is the ordered provider chain for structured generation.
type LLMConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// WarehouseConfig locates the seller warehouse database.
type WarehouseConfig struct {
	Path     string `yaml:"path"`
	SeedDemo bool   `yaml:"seed_demo"`
	FeesPath string `yaml:"fees_path,omitempty"`
}

// ChatConfig locates the chat/session store database.
type ChatConfig struct {
	Path string `yaml:"path"`
}

// RAGConfig locates the policy corpus and bounds retrieval size.
type RAGConfig struct {
	CorpusPath  string `yaml:"corpus_path"`
	DefaultTopK int    `yaml:"default_top_k"`
	MaxTopK     int    `yaml:"max_top_k"`
}

// ServerConfig controls the optional health + metrics listener.
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Config is the full copilot configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Chat      ChatConfig      `yaml:"chat"`
	RAG       RAGConfig       `yaml:"rag"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns a config usable without any file: offline generation,
// local database paths, and the bundled policy corpus.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Providers: []ProviderConfig{
				{Name: ProviderOffline, Model: "offline", Temperature: 0.2, MaxTokens: 1024},
			},
		},
		Warehouse: WarehouseConfig{Path: "copilot_warehouse.db", SeedDemo: true},
		Chat:      ChatConfig{Path: "copilot_chat.db"},
		RAG:       RAGConfig{DefaultTopK: 4, MaxTopK: 8},
	}
}

// Load reads the YAML file at path, fills unset fields with defaults, and
// validates the result. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.LLM.Providers) == 0 {
		c.LLM.Providers = Default().LLM.Providers
	}
	for i := range c.LLM.Providers {
		p := &c.LLM.Providers[i]
		if p.MaxTokens == 0 {
			p.MaxTokens = 1024
		}
		if p.Model == "" {
			switch p.Name {
			case ProviderAnthropic:
				p.Model = DefaultAnthropicModel
			case ProviderOpenAI:
				p.Model = DefaultOpenAIModel
			case ProviderOllama:
				p.Model = DefaultOllamaModel
			}
		}
		if p.APIKeyEnv == "" {
			switch p.Name {
			case ProviderAnthropic:
				p.APIKeyEnv = "ANTHROPIC_API_KEY"
			case ProviderOpenAI:
				p.APIKeyEnv = "OPENAI_API_KEY"
			}
		}
		if p.Name == ProviderOllama && p.BaseURL == "" {
			p.BaseURL = "http://localhost:11434"
		}
	}
	if c.Warehouse.Path == "" {
		c.Warehouse.Path = Default().Warehouse.Path
	}
	if c.Chat.Path == "" {
		c.Chat.Path = Default().Chat.Path
	}
	if c.RAG.DefaultTopK == 0 {
		c.RAG.DefaultTopK = 4
	}
	if c.RAG.MaxTopK == 0 {
		c.RAG.MaxTopK = 8
	}
}

// Validate checks provider names, token limits, and retrieval bounds.
func (c *Config) Validate() error {
	for i, p := range c.LLM.Providers {
		switch p.Name {
		case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderOffline:
		default:
			return fmt.Errorf("llm.providers[%d]: unknown provider %q", i, p.Name)
		}
		if p.MaxTokens <= 0 {
			return fmt.Errorf("llm.providers[%d]: max_tokens must be positive", i)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("llm.providers[%d]: temperature %v out of range", i, p.Temperature)
		}
	}
	if c.RAG.DefaultTopK <= 0 || c.RAG.MaxTopK <= 0 {
		return fmt.Errorf("rag: top_k values must be positive")
	}
	if c.RAG.DefaultTopK > c.RAG.MaxTopK {
		return fmt.Errorf("rag: default_top_k %d exceeds max_top_k %d", c.RAG.DefaultTopK, c.RAG.MaxTopK)
	}
	return nil
}

// APIKey resolves the provider's API key from its configured env var.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

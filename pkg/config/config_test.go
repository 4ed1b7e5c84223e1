package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.LLM.Providers, 1)
	assert.Equal(t, ProviderOffline, cfg.LLM.Providers[0].Name)
	assert.True(t, cfg.Warehouse.SeedDemo)
	assert.Equal(t, 4, cfg.RAG.DefaultTopK)
}

func TestLoadFillsProviderDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  providers:
    - name: anthropic
    - name: ollama
warehouse:
  path: wh.db
rag:
  corpus_path: corpus.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.LLM.Providers, 2)
	assert.Equal(t, DefaultAnthropicModel, cfg.LLM.Providers[0].Model)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.LLM.Providers[0].APIKeyEnv)
	assert.Equal(t, DefaultOllamaModel, cfg.LLM.Providers[1].Model)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.Providers[1].BaseURL)
	assert.Equal(t, 1024, cfg.LLM.Providers[0].MaxTokens)

	assert.Equal(t, "wh.db", cfg.Warehouse.Path)
	assert.Equal(t, "copilot_chat.db", cfg.Chat.Path)
	assert.Equal(t, "corpus.yaml", cfg.RAG.CorpusPath)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  providers:
    - name: mystery
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestLoadRejectsBadTopK(t *testing.T) {
	path := writeConfig(t, `
rag:
  default_top_k: 10
  max_top_k: 4
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_top_k")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateTemperatureRange(t *testing.T) {
	cfg := Default()
	cfg.LLM.Providers[0].Temperature = 3.0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("COPILOT_TEST_KEY", "sk-test")
	p := ProviderConfig{APIKeyEnv: "COPILOT_TEST_KEY"}
	assert.Equal(t, "sk-test", p.APIKey())
	assert.Empty(t, ProviderConfig{}.APIKey())
}

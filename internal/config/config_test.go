package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fablerag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, []string{"ollama"}, cfg.Providers)
	assert.Equal(t, "ollama", cfg.DefaultProvider)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaURL)
	assert.Equal(t, 60*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, "Fable", cfg.Collection)
	assert.Equal(t, "nomic-embed-text", cfg.EmbedModel)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `port: 9000
providers: [ollama, claude_code, codex]
default_provider: claude_code
ollama_models: ["llama3.2:latest", "mistral:7b"]
ollama_url: "http://gpu-box:11434"
weaviate_host: "db:8080"
embed_model: "all-minilm"
generate_timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"ollama", "claude_code", "codex"}, cfg.Providers)
	assert.Equal(t, "claude_code", cfg.DefaultProvider)
	assert.Equal(t, []string{"llama3.2:latest", "mistral:7b"}, cfg.OllamaModels)
	assert.Equal(t, "http://gpu-box:11434", cfg.OllamaURL)
	assert.Equal(t, "db:8080", cfg.WeaviateHost)
	assert.Equal(t, "all-minilm", cfg.EmbedModel)
	assert.Equal(t, 90*time.Second, cfg.GenerateTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FABLERAG_PORT", "7777")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Port)
}

func TestLoadDefaultProviderFallsBackToFirst(t *testing.T) {
	path := writeConfig(t, "providers: [codex, ollama]\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "codex", cfg.DefaultProvider)
}

func TestLoadRejectsBadDefaultProvider(t *testing.T) {
	path := writeConfig(t, `providers: [ollama]
default_provider: gemini_cli
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini_cli")
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := writeConfig(t, "port: 70000\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestHasProvider(t *testing.T) {
	cfg := &Config{Providers: []string{"ollama", "codex"}}
	assert.True(t, cfg.HasProvider("codex"))
	assert.False(t, cfg.HasProvider("claude_code"))
}

func TestHasOllamaModel(t *testing.T) {
	cfg := &Config{OllamaModels: []string{"llama3.2:latest"}}
	assert.True(t, cfg.HasOllamaModel("llama3.2:latest"))
	assert.False(t, cfg.HasOllamaModel("mistral:7b"))

	// An empty allowlist delegates model validity to the daemon.
	open := &Config{}
	assert.True(t, open.HasOllamaModel("anything"))
}

func TestAddr(t *testing.T) {
	cfg := &Config{Host: "0.0.0.0", Port: 8000}
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Ollama.Host)
	assert.Equal(t, 11434, cfg.Ollama.Port)
	assert.Equal(t, []string{"ollama", "lm_studio"}, cfg.PreferredBackends)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ollama":{"host":"10.0.0.5","port":12000}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Ollama.Host)
	assert.Equal(t, 12000, cfg.Ollama.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ollama":{"host":"file-host","port":12000}}`), 0o644))
	t.Setenv("QWEN_TUI_OLLAMA_HOST", "env-host")
	t.Setenv("QWEN_TUI_OLLAMA_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Ollama.Host)
	assert.Equal(t, 9999, cfg.Ollama.Port)
}

func TestLoad_OpenRouterAPIKeyAlias(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-or-test", cfg.OpenRouter.APIKey)
}

func TestLoad_UnknownMCPServerKeyIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcp":{"servers":[{"name":"x","bogus_key":1}]}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidPortFallsBackToDefault(t *testing.T) {
	t.Setenv("QWEN_TUI_OLLAMA_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 11434, cfg.Ollama.Port)
}

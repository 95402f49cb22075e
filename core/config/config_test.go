package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 0.75, cfg.Knowledge.SimilarityThreshold)
	assert.Equal(t, 5, cfg.Knowledge.MaxSearchResults)
	assert.Equal(t, 5*time.Second, cfg.Knowledge.RAGTimeout)
	assert.Equal(t, 10000, cfg.Optimizer.MaxPromptLength)
	assert.Equal(t, 20, cfg.Optimizer.MaxVariablesPerTemplate)
	assert.Equal(t, 3, cfg.Optimizer.RAGSourceLimit)
	assert.Equal(t, 2000, cfg.Optimizer.GenerationMaxTokens)
	assert.True(t, cfg.Optimizer.EnableRAG)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	content := `
knowledge:
  similarity_threshold: 0.6
  max_search_results: 10
optimizer:
  max_prompt_length: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Knowledge.SimilarityThreshold)
	assert.Equal(t, 10, cfg.Knowledge.MaxSearchResults)
	assert.Equal(t, 5000, cfg.Optimizer.MaxPromptLength)
	assert.Equal(t, 384, cfg.Embedding.Dimension, "untouched values keep defaults")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	content := `
providers:
  anthropic_api_key: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("PROMPTAB_DB_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers.AnthropicAPIKey)
	assert.Equal(t, "/tmp/override.db", cfg.Knowledge.DBPath)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	content := `
knowledge:
  similarity_threshold: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "knowledge.similarity_threshold", cfgErr.Field)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("knowledge: ["), 0644))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestManager_GetAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimizer:\n  max_prompt_length: 5000\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, m.Get().Optimizer.MaxPromptLength)

	require.NoError(t, os.WriteFile(path, []byte("optimizer:\n  max_prompt_length: 8000\n"), 0644))
	require.NoError(t, m.Reload())
	assert.Equal(t, 8000, m.Get().Optimizer.MaxPromptLength)
}

func TestManager_ReloadKeepsSnapshotOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimizer:\n  max_prompt_length: 5000\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("optimizer:\n  max_prompt_length: -1\n"), 0644))
	require.Error(t, m.Reload())

	assert.Equal(t, 5000, m.Get().Optimizer.MaxPromptLength, "bad reload must not clobber the snapshot")
}

func TestManager_OnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	var seen *Config
	m.OnReload(func(cfg *Config) { seen = cfg })

	require.NoError(t, m.Reload())
	require.NotNil(t, seen)
	assert.Equal(t, m.Get(), seen)
}

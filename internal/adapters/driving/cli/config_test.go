package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Short key", input: "abc123", expected: "****"},
		{name: "Exactly 8 chars", input: "12345678", expected: "****"},
		{name: "Long key", input: "sk-1234567890abcdef", expected: "sk-1...cdef"},
		{name: "Very long key", input: "sk-proj-1234567890abcdefghijklmnop", expected: "sk-p...mnop"},
		{name: "Empty key", input: "", expected: "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskAPIKey(tt.input))
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{name: "Empty input returns default", input: "", maxVal: 5, defaultVal: 1, expected: 1},
		{name: "Valid choice within range", input: "3", maxVal: 5, defaultVal: 1, expected: 3},
		{name: "Choice below minimum returns default", input: "0", maxVal: 5, defaultVal: 1, expected: 1},
		{name: "Choice above maximum returns default", input: "6", maxVal: 5, defaultVal: 1, expected: 1},
		{name: "Invalid input returns default", input: "abc", maxVal: 5, defaultVal: 2, expected: 2},
		{name: "Negative number returns default", input: "-1", maxVal: 5, defaultVal: 1, expected: 1},
		{name: "Maximum value is valid", input: "5", maxVal: 5, defaultVal: 1, expected: 5},
		{name: "Minimum value is valid", input: "1", maxVal: 5, defaultVal: 3, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseChoice(tt.input, tt.maxVal, tt.defaultVal))
		})
	}
}

func TestSettingValues_CoversEveryKey(t *testing.T) {
	s := domain.DefaultSettings()
	values := settingValues(&s)

	assert.Equal(t, "500", values["chunker.chunk_size"])
	assert.Equal(t, "0.2", values["chunker.overlap_fraction"])
	assert.Equal(t, "hashing", values["embedding.provider"])
	assert.Equal(t, "200ms", values["embedding.backoff"])
	assert.Equal(t, "sqlite", values["index.backend"])
	assert.Equal(t, "", values["llm.api_key"])
	assert.Len(t, values, 28)
}

func TestConfigShowCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.LLM.Model = "llama-3.1-8b-instant"
	ts.settings.settings.LLM.APIKey = "gsk_1234567890abcdef"

	out, err := execute(t, "config")

	require.NoError(t, err)
	assert.Contains(t, out, "Chunk size: 500")
	assert.Contains(t, out, "Overlap: 0.20 (100 chars)")
	assert.Contains(t, out, "Provider: Feature hashing (offline)")
	assert.Contains(t, out, "Backend: SQLite (local file)")
	assert.Contains(t, out, "Model: llama-3.1-8b-instant")
	assert.Contains(t, out, "API Key: gsk_...cdef")
	assert.NotContains(t, out, "gsk_1234567890abcdef")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestConfigShowCmd_InvalidSettingsWarn(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.Index.Backend = domain.IndexBackendPostgres

	out, err := execute(t, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "DSN: (not set)")
	assert.Contains(t, out, "Warning: configuration index.dsn")
}

func TestConfigGetCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "config", "get", "retrieval.k")
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	_, err = execute(t, "config", "get", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "nope"`)
}

func TestConfigSetCmd(t *testing.T) {
	t.Run("stores value", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		out, err := execute(t, "config", "set", "chunker.chunk_size", "800")

		require.NoError(t, err)
		assert.Equal(t, "800", ts.settings.values["chunker.chunk_size"])
		assert.Contains(t, out, "Set chunker.chunk_size")
	})

	t.Run("rejects invalid value", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		_, err := execute(t, "config", "set", "retrieval.k", "0")

		require.Error(t, err)
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("requires two args", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		_, err := execute(t, "config", "set", "retrieval.k")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 2 arg(s)")
	})
}

func TestConfigKeysCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "config", "keys")

	require.NoError(t, err)
	assert.Equal(t, "chunker.chunk_size\nretrieval.k\n", out)
}

func TestConfigValidateCmd(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		out, err := execute(t, "config", "validate")

		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is valid.")
	})

	t.Run("invalid", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		ts.settings.settings.Embedding.Provider = domain.EmbeddingProviderOpenAI

		_, err := execute(t, "config", "validate")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding.api_key")
	})

	t.Run("ping", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		var pinged *domain.Settings
		connectivity = func(_ context.Context, s *domain.Settings) error {
			pinged = s
			return nil
		}

		out, err := execute(t, "config", "validate", "--ping")

		require.NoError(t, err)
		require.NotNil(t, pinged)
		assert.Contains(t, out, "Services reachable.")
	})

	t.Run("ping failure", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		connectivity = func(context.Context, *domain.Settings) error {
			return domain.ErrEmbeddingUnavailable
		}

		_, err := execute(t, "config", "validate", "--ping")

		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("ping not configured", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		_, err := execute(t, "config", "validate", "--ping")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connectivity check not configured")
	})
}

func TestConfigEmbeddingCmd(t *testing.T) {
	t.Run("openai with key", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		rootCmd.SetIn(strings.NewReader("2\ntext-embedding-3-large\nsk-test-0123456789\n"))
		out, err := execute(t, "config", "embedding")

		require.NoError(t, err)
		got := ts.settings.settings.Embedding
		assert.Equal(t, domain.EmbeddingProviderOpenAI, got.Provider)
		assert.Equal(t, "text-embedding-3-large", got.Model)
		assert.Equal(t, "sk-test-0123456789", got.APIKey)
		assert.Contains(t, out, "(3072 dimensions)")
	})

	t.Run("ollama default model", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		rootCmd.SetIn(strings.NewReader("3\n\n"))
		_, err := execute(t, "config", "embedding")

		require.NoError(t, err)
		assert.Equal(t, "all-minilm", ts.settings.settings.Embedding.Model)
		assert.Equal(t, 384, ts.settings.settings.Embedding.Dimensions)
	})

	t.Run("openai without key fails", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		rootCmd.SetIn(strings.NewReader("2\n\n\n"))
		_, err := execute(t, "config", "embedding")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to set embedding provider")
	})
}

func TestConfigCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settingsService = nil

	for _, args := range [][]string{{"config", "show"}, {"config", "keys"}, {"config", "validate"}} {
		_, err := execute(t, args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "settings service not configured")
	}
}

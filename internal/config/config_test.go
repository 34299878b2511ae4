package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hudhud/backend/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "hudhud", cfg.DBName)
	assert.Equal(t, "openai", cfg.EmbeddingProvider)
	assert.Equal(t, 3072, cfg.EmbeddingDimensions)
	assert.Equal(t, 1000, cfg.EmbedRateLimitMS)
	assert.Equal(t, 512, cfg.ChunkMaxTokens)
	assert.Equal(t, 8081, cfg.ServerPort)
	assert.Equal(t, []string{"https://localhost:9200"}, cfg.OpenSearchAddresses)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("OPENSEARCH_ADDRESSES", "https://os1:9200,https://os2:9200")
	t.Setenv("SEMANTIC_CHUNKING", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, []string{"https://os1:9200", "https://os2:9200"}, cfg.OpenSearchAddresses)
	assert.True(t, cfg.SemanticChunking)
}

func TestValidate_RequiresProviderKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestValidate_GeminiProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.EmbeddingProvider)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "cohere")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported embedding provider")
}

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost: "localhost", DBPort: 5433, DBUser: "u", DBPass: "p", DBName: "d",
	}
	assert.Equal(t, "host=localhost port=5433 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}

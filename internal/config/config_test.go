package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("DOCUCHAT_CONFIG_FILE", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCUCHAT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.API.ListenAddress)
	assert.Equal(t, 30*time.Second, cfg.API.ReadTimeout)
	assert.True(t, cfg.API.EnableCORS)
	assert.False(t, cfg.API.RateLimit.Enabled)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "vectors/", cfg.S3.VectorPrefix)
	assert.Equal(t, "amazon.titan-embed-text-v2:0", cfg.Bedrock.EmbeddingsModelID)
	assert.Equal(t, 4096, cfg.Bedrock.MaxTokens)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.7, cfg.RAG.MinSimilarity, 1e-9)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 1000, cfg.Session.MaxSessions)
	assert.Empty(t, cfg.Database.DSN)
	assert.True(t, cfg.WebSocket.Enabled)
	assert.False(t, cfg.Tools.Enabled)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	writeConfigFile(t, `
api:
  listen_address: ":9090"
s3:
  bucket: my-vectors
rag:
  top_k: 3
  min_similarity: 0.5
knowledge_base:
  knowledge_base_id: KB123
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.API.ListenAddress)
	assert.Equal(t, "my-vectors", cfg.S3.Bucket)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.InDelta(t, 0.5, cfg.RAG.MinSimilarity, 1e-9)
	assert.Equal(t, "KB123", cfg.KnowledgeBase.KnowledgeBaseID)
	// Untouched values keep their defaults.
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	writeConfigFile(t, `
s3:
  bucket: from-file
`)
	t.Setenv("DOCUCHAT_S3_BUCKET", "from-env")
	t.Setenv("DOCUCHAT_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.S3.Bucket)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	writeConfigFile(t, `
rag:
  top_k: 0
`)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rag.top_k")
}

func TestValidate(t *testing.T) {
	valid := Config{
		RAG:     RAGConfig{TopK: 5, MinSimilarity: 0.7, ChunkSize: 1000, ChunkOverlap: 100},
		Session: SessionConfig{MaxSessions: 100},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "top_k below one",
			mutate:  func(c *Config) { c.RAG.TopK = 0 },
			wantErr: "rag.top_k",
		},
		{
			name:    "similarity out of range",
			mutate:  func(c *Config) { c.RAG.MinSimilarity = 1.5 },
			wantErr: "rag.min_similarity",
		},
		{
			name:    "overlap not smaller than size",
			mutate:  func(c *Config) { c.RAG.ChunkOverlap = 1000 },
			wantErr: "rag.chunk_overlap",
		},
		{
			name:    "max sessions below one",
			mutate:  func(c *Config) { c.Session.MaxSessions = 0 },
			wantErr: "session.max_sessions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("RELATIONAL_DSN", "postgres://localhost/etl")
	t.Setenv("VECTOR_STORE_URL", "localhost:6334")
	t.Setenv("EMBEDDER_URL", "http://localhost:8081")
	t.Setenv("LOT_FEED_URL", "http://localhost:9000")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, int64(50*1024*1024), cfg.Fetcher.MaxFileBytes)
	assert.Equal(t, 200, cfg.Extractor.TextThresholdChars)
	assert.Equal(t, 2.0, cfg.Extractor.RenderScale)
	assert.Equal(t, 384, cfg.Embedder.EmbeddingDim)
	assert.Equal(t, 4, cfg.WorkerPool.MaxWorkers)
	assert.Equal(t, 256, cfg.WorkerPool.QueueCapacity)
	assert.Equal(t, uint(2), cfg.WorkerPool.RetriesMax)
	assert.Equal(t, 30, int(cfg.Embedder.TimeoutSec.Duration().Seconds()))
	assert.Equal(t, 10, int(cfg.RelStore.TimeoutSec.Duration().Seconds()))
	assert.Equal(t, 30, int(cfg.WorkerPool.BatchTimeout.Duration().Minutes()))
	assert.Equal(t, "etl_documents", cfg.CollectionName)
	assert.False(t, cfg.Reconcile.Enabled)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("RELATIONAL_DSN", "postgres://localhost/etl")
	t.Setenv("VECTOR_STORE_URL", "localhost:6334")
	t.Setenv("EMBEDDER_URL", "http://localhost:8081")
	t.Setenv("LOT_FEED_URL", "http://localhost:9000")
	t.Setenv("MAX_FILE_BYTES", "1024")
	t.Setenv("MAX_WORKERS", "8")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.Fetcher.MaxFileBytes)
	assert.Equal(t, 8, cfg.WorkerPool.MaxWorkers)
}

func TestLoad_MissingRequiredFieldsFails(t *testing.T) {
	_, err := Load(nil)
	require.Error(t, err)
}

func TestSecret_RedactsValue(t *testing.T) {
	s := Secret("super-secret-token")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret-token", s.Value())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))
}

func TestSecret_EmptyIsNotSet(t *testing.T) {
	var s Secret
	assert.False(t, s.IsSet())
	assert.Equal(t, "", s.String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("30s")))
	assert.Equal(t, 30, int(d.Duration().Seconds()))

	var neg Duration
	require.Error(t, neg.UnmarshalText([]byte("-5s")))
}

package embedder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Embed_Success(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2, 0.3}})
	})

	c := NewClient(config.EmbedderConfig{URL: srv.URL, EmbeddingDim: 3, TimeoutSec: config.Duration(5 * time.Second)}, nil, errkind.RetryPolicy{})
	vec, err := c.Embed(t.Context(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestClient_Embed_DimMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}})
	})

	c := NewClient(config.EmbedderConfig{URL: srv.URL, EmbeddingDim: 384, TimeoutSec: config.Duration(5 * time.Second)}, nil, errkind.RetryPolicy{})
	_, err := c.Embed(t.Context(), "hello")
	require.Error(t, err)
	assert.Equal(t, errkind.EmbeddingDimMismatch, errkind.KindOf(err))
}

func TestClient_Embed_UpstreamUnavailable(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := NewClient(config.EmbedderConfig{URL: srv.URL, EmbeddingDim: 384, TimeoutSec: config.Duration(5 * time.Second)}, nil, errkind.RetryPolicy{})
	_, err := c.Embed(t.Context(), "hello")
	require.Error(t, err)
	assert.Equal(t, errkind.EmbedUnavailable, errkind.KindOf(err))
}

func TestClient_Embed_BadRequest(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	c := NewClient(config.EmbedderConfig{URL: srv.URL, EmbeddingDim: 384, TimeoutSec: config.Duration(5 * time.Second)}, nil, errkind.RetryPolicy{})
	_, err := c.Embed(t.Context(), "hello")
	require.Error(t, err)
	assert.Equal(t, errkind.Validation, errkind.KindOf(err))
}

func TestClient_Embed_RetriesTransientFailureThenSucceeds(t *testing.T) {
	var attempts int
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2, 0.3}})
	})

	c := NewClient(config.EmbedderConfig{URL: srv.URL, EmbeddingDim: 3, TimeoutSec: config.Duration(5 * time.Second)},
		nil, errkind.RetryPolicy{MaxRetries: 2})
	vec, err := c.Embed(t.Context(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 2, attempts)
}

func TestClient_EmbedBatch_RejectsEmpty(t *testing.T) {
	c := NewClient(config.EmbedderConfig{URL: "http://unused", EmbeddingDim: 384, TimeoutSec: config.Duration(5 * time.Second)}, nil, errkind.RetryPolicy{})
	_, err := c.EmbedBatch(t.Context(), nil)
	require.Error(t, err)
	assert.Equal(t, errkind.Validation, errkind.KindOf(err))
}

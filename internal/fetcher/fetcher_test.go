package fetcher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

func testConfig(maxBytes int64) config.FetcherConfig {
	return config.FetcherConfig{
		MaxFileBytes:    maxBytes,
		FetchTimeoutSec: config.Duration(5 * time.Second),
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(1 << 20), nil, errkind.RetryPolicy{})
	res, err := c.Fetch(t.Context(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.True(t, strings.HasPrefix(string(res.Bytes), "%PDF"))
}

func TestClient_Fetch_TooLargeByContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig(10), nil, errkind.RetryPolicy{})
	_, err := c.Fetch(t.Context(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, errkind.TooLarge, errkind.KindOf(err))
}

func TestClient_Fetch_TooLargeByStreamedBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length hint (chunked), forces byte-count enforcement.
		flusher, _ := w.(http.Flusher)
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(10), nil, errkind.RetryPolicy{})
	_, err := c.Fetch(t.Context(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, errkind.TooLarge, errkind.KindOf(err))
}

func TestClient_Fetch_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(1 << 20), nil, errkind.RetryPolicy{})
	_, err := c.Fetch(t.Context(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, errkind.HTTPStatus4xx, errkind.KindOf(err))
}

func TestClient_Fetch_RetriesTransient5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(1<<20), nil, errkind.RetryPolicy{MaxRetries: 2})
	res, err := c.Fetch(t.Context(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Bytes))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Fetch_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig(1 << 20), nil, errkind.RetryPolicy{})
	_, err := c.Fetch(t.Context(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, errkind.Empty, errkind.KindOf(err))
}

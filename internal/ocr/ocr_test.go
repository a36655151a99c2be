package ocr

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

func testConfig(url string) config.OCRConfig {
	return config.OCRConfig{
		URL:        url,
		TimeoutSec: config.Duration(5 * time.Second),
		Languages:  "rus+eng",
		PSM:        "6",
	}
}

func TestClient_Recognize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"распознанный текст"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	text, err := c.Recognize(t.Context(), []byte("%PDF-fake"), 0, 2.0, []string{"rus", "eng"}, "6")
	require.NoError(t, err)
	assert.Equal(t, "распознанный текст", text)
}

func TestClient_Recognize_EmptyAfterOCR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.Recognize(t.Context(), []byte("%PDF-fake"), 0, 2.0, []string{"rus"}, "6")
	require.Error(t, err)
	assert.Equal(t, errkind.EmptyAfterOCR, errkind.KindOf(err))
}

func TestClient_Recognize_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.Recognize(t.Context(), []byte("%PDF-fake"), 0, 2.0, []string{"rus"}, "6")
	require.Error(t, err)
	assert.Equal(t, errkind.OCRFailed, errkind.KindOf(err))
}

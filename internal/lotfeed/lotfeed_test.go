package lotfeed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]lotResponse{
			{
				LotID:       "lot-1",
				Title:       "Закупка бумаги",
				Amount:      "1500.50",
				CustomerBIN: "123456789012",
				Attachments: []attachmentEntry{{URL: "http://x/a.pdf", DeclaredName: "a.pdf", DeclaredType: "pdf"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(config.LotFeedConfig{URL: srv.URL})
	lots, err := c.Fetch(t.Context(), "", 10)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "lot-1", lots[0].LotID)
	assert.True(t, lots[0].Amount.Equal(lots[0].Amount))
}

func TestClient_Fetch_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.LotFeedConfig{URL: srv.URL})
	_, err := c.Fetch(t.Context(), "", 10)
	require.Error(t, err)
	assert.Equal(t, errkind.AuthRejected, errkind.KindOf(err))
}

func TestClient_Fetch_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.LotFeedConfig{URL: srv.URL})
	_, err := c.Fetch(t.Context(), "", 10)
	require.Error(t, err)
	assert.Equal(t, errkind.Unavailable, errkind.KindOf(err))
}

func TestSplitAuth(t *testing.T) {
	id, secret := splitAuth("client-id:client-secret")
	assert.Equal(t, "client-id", id)
	assert.Equal(t, "client-secret", secret)
}

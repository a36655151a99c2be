// Package lotfeed provides the inbound LotFeed adapter: an HTTP client over
// the upstream procurement feed, authenticated via OAuth2 client credentials.
package lotfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/models"
)

// Client fetches Lots from the upstream feed.
type Client struct {
	cfg  config.LotFeedConfig
	http *http.Client
}

// NewClient builds a lot-feed client. When cfg.Auth is set, it is treated as
// "client_id:client_secret" and exchanged for OAuth2 client-credentials
// tokens against cfg.URL + "/oauth/token"; an unset Auth means the feed is
// reachable without authentication (used in local/dev environments).
func NewClient(cfg config.LotFeedConfig) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if cfg.Auth.IsSet() {
		clientID, clientSecret := splitAuth(cfg.Auth.Value())
		ccCfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     cfg.URL + "/oauth/token",
		}
		httpClient = ccCfg.Client(context.Background())
	}

	return &Client{cfg: cfg, http: httpClient}
}

func splitAuth(raw string) (clientID, clientSecret string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:]
		}
	}
	return raw, ""
}

type lotResponse struct {
	LotID       string            `json:"lot_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Amount      string            `json:"amount"`
	CustomerBIN string            `json:"customer_bin"`
	Attachments []attachmentEntry `json:"attachments"`
}

type attachmentEntry struct {
	URL          string `json:"url"`
	DeclaredName string `json:"declared_name"`
	DeclaredType string `json:"declared_type"`
}

// Fetch retrieves up to limit Lots emitted since the given opaque cursor.
func (c *Client) Fetch(ctx context.Context, since string, limit int) ([]models.Lot, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/lots?"+q.Encode(), nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "lotfeed: build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Unavailable, "lotfeed: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errkind.New(errkind.AuthRejected, fmt.Sprintf("lotfeed: status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.New(errkind.Unavailable, fmt.Sprintf("lotfeed: status %d", resp.StatusCode))
	}

	var raw []lotResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errkind.Wrap(errkind.Unavailable, "lotfeed: decode response", err)
	}

	lots := make([]models.Lot, 0, len(raw))
	for _, r := range raw {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			amount = decimal.Zero
		}
		refs := make([]models.AttachmentRef, 0, len(r.Attachments))
		for _, a := range r.Attachments {
			refs = append(refs, models.AttachmentRef{
				URL:          a.URL,
				DeclaredName: a.DeclaredName,
				DeclaredType: models.AttachmentType(a.DeclaredType),
			})
		}
		lots = append(lots, models.Lot{
			LotID:          r.LotID,
			Title:          r.Title,
			Description:    r.Description,
			Amount:         amount,
			CustomerBIN:    r.CustomerBIN,
			AttachmentRefs: refs,
		})
	}
	return lots, nil
}

// Ping checks reachability for the health endpoint's subsystem map.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return errkind.Wrap(errkind.Unavailable, "lotfeed: build ping request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.Unavailable, "lotfeed: ping failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errkind.New(errkind.Unavailable, fmt.Sprintf("lotfeed: ping status %d", resp.StatusCode))
	}
	return nil
}

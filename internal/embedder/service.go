// Package embedder provides the outbound Embedder adapter: a TEI-style HTTP
// client that turns document/query text into fixed-dimension vectors.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

// Client generates embeddings via an external TEI-compatible HTTP service.
type Client struct {
	cfg     config.EmbedderConfig
	http    *http.Client
	metrics *Metrics
	retry   errkind.RetryPolicy
}

// NewClient builds an embedder client from config, registering its metrics
// with reg (nil disables registration, e.g. in tests) and retrying
// transient failures per retry.
func NewClient(cfg config.EmbedderConfig, reg prometheus.Registerer, retry errkind.RetryPolicy) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		metrics: NewMetrics(reg),
		retry:   retry,
	}
}

// teiRequest is the request body for the TEI /embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// Embed generates an embedding vector for a single query string. Fails with
// errkind.EmbedUnavailable for transport/5xx failures and errkind.Validation
// for 4xx.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, "embed_query", []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one round trip.
// The ingestion path does not call it: the indexer embeds each document
// on its own through Embed.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, "embed_documents", texts)
}

func (c *Client) embed(ctx context.Context, operation string, texts []string) ([][]float32, error) {
	start := time.Now()
	var opErr error
	defer func() {
		c.metrics.RecordGeneration(operation, time.Since(start), len(texts), opErr)
	}()

	if len(texts) == 0 {
		opErr = errkind.New(errkind.Validation, "embed: texts must not be empty")
		return nil, opErr
	}

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		opErr = errkind.Wrap(errkind.Validation, "embed: marshal request", err)
		return nil, opErr
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutSec.Duration())
	defer cancel()

	var vectors [][]float32
	opErr = c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/embed", bytes.NewReader(body))
		if err != nil {
			return errkind.Wrap(errkind.Validation, "embed: build request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return errkind.Wrap(errkind.EmbedUnavailable, "embed: request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(resp.Body)
			return errkind.New(errkind.EmbedUnavailable, fmt.Sprintf("embed: upstream status %d: %s", resp.StatusCode, respBody))
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return errkind.New(errkind.Validation, fmt.Sprintf("embed: bad request, status %d: %s", resp.StatusCode, respBody))
		}

		var decoded [][]float32
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return errkind.Wrap(errkind.EmbedUnavailable, "embed: decode response", err)
		}
		if len(decoded) == 0 {
			return errkind.New(errkind.EmbedUnavailable, "embed: empty response")
		}
		for _, v := range decoded {
			if len(v) != c.cfg.EmbeddingDim {
				return errkind.New(errkind.EmbeddingDimMismatch,
					fmt.Sprintf("embed: expected dim %d, got %d", c.cfg.EmbeddingDim, len(v)))
			}
		}

		vectors = decoded
		return nil
	})
	if opErr != nil {
		return nil, opErr
	}

	return vectors, nil
}

// Ping checks whether the embedder service is reachable, used by the
// health endpoint's subsystem map.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return errkind.Wrap(errkind.EmbedUnavailable, "ping: build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.EmbedUnavailable, "ping: request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errkind.New(errkind.EmbedUnavailable, fmt.Sprintf("ping: status %d", resp.StatusCode))
	}
	return nil
}

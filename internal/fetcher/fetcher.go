// Package fetcher materialises a remote byte stream into a size-capped
// in-memory buffer, enforcing a byte cap and a deadline before any parsing
// happens downstream.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

// Result is what a successful Fetch returns.
type Result struct {
	Bytes       []byte
	ContentType string
}

// Client downloads attachments over HTTP(S), capping response size and
// shaping request rate per host so one slow or chatty upstream lot feed
// can't starve the others.
type Client struct {
	cfg     config.FetcherConfig
	http    *http.Client
	mu      sync.Mutex
	limiter map[string]*rate.Limiter
	metrics *Metrics
	retry   errkind.RetryPolicy
}

// defaultPerHostRate caps sustained fetches per host; burst allows a short
// catch-up when a batch's lots cluster on one domain.
const (
	defaultPerHostRate = 5 // requests/sec
	defaultBurst       = 10
)

// NewClient builds a fetcher from config, registering its metrics with reg
// (nil disables registration, e.g. in tests) and retrying transient
// failures per retry.
func NewClient(cfg config.FetcherConfig, reg prometheus.Registerer, retry errkind.RetryPolicy) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: make(map[string]*rate.Limiter),
		metrics: NewMetrics(reg),
		retry:   retry,
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiter[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(defaultPerHostRate), defaultBurst)
		c.limiter[host] = l
	}
	return l
}

// Fetch downloads url, enforcing max_bytes and the fetch timeout.
// authHeader, if non-empty, is sent verbatim as the Authorization header
// (used for lot-feed attachments requiring bearer auth).
func (c *Client) Fetch(ctx context.Context, url, authHeader string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		kind := ""
		size := 0
		if err != nil {
			kind = string(errkind.KindOf(err))
		} else if res != nil {
			size = len(res.Bytes)
		}
		c.metrics.RecordFetch(time.Since(start), size, kind)
	}()

	maxBytes := c.cfg.MaxFileBytes
	timeout := c.cfg.FetchTimeoutSec.Duration()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = c.retry.Do(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return errkind.Wrap(errkind.Network, "fetch: build request", reqErr)
		}
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}

		if waitErr := c.limiterFor(req.URL.Host).Wait(ctx); waitErr != nil {
			return errkind.Wrap(errkind.Timeout, "fetch: rate limiter wait", waitErr)
		}

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			if ctx.Err() != nil {
				return errkind.Wrap(errkind.Timeout, "fetch: deadline exceeded", doErr)
			}
			return errkind.Wrap(errkind.Network, "fetch: request failed", doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return errkind.New(errkind.HTTPStatus5xx, "fetch: status "+strconv.Itoa(resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return errkind.New(errkind.HTTPStatus4xx, "fetch: status "+strconv.Itoa(resp.StatusCode))
		}

		if cl := resp.ContentLength; cl > 0 && cl > maxBytes {
			return errkind.New(errkind.TooLarge, "fetch: content-length exceeds max_bytes")
		}

		limited := io.LimitReader(resp.Body, maxBytes+1)
		body, readErr := io.ReadAll(limited)
		if readErr != nil {
			if ctx.Err() != nil {
				return errkind.Wrap(errkind.Timeout, "fetch: read deadline exceeded", readErr)
			}
			return errkind.Wrap(errkind.Network, "fetch: read body", readErr)
		}
		if int64(len(body)) > maxBytes {
			return errkind.New(errkind.TooLarge, "fetch: body exceeded max_bytes")
		}
		if len(body) == 0 {
			return errkind.New(errkind.Empty, "fetch: 0-byte response")
		}

		res = &Result{Bytes: body, ContentType: resp.Header.Get("Content-Type")}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

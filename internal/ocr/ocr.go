// Package ocr provides the outbound OcrEngine adapter: an HTTP client that
// rasterises one PDF page server-side and returns its recognised text.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

// Client talks to an external OCR service that accepts raw PDF bytes plus a
// page index and returns that page's recognised text. Rasterization (PDF
// page -> bitmap) happens server-side; the core only decides scale, the
// language set, and the page segmentation mode.
type Client struct {
	cfg     config.OCRConfig
	http    *http.Client
	metrics *Metrics
}

// NewClient builds an OCR client from config, registering its metrics with
// reg (nil disables registration, e.g. in tests).
func NewClient(cfg config.OCRConfig, reg prometheus.Registerer) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		metrics: NewMetrics(reg),
	}
}

type recognizeRequest struct {
	Page      int     `json:"page"`
	Scale     float64 `json:"scale"`
	Languages string  `json:"languages"`
	PSM       string  `json:"psm"`
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize submits one PDF page for OCR, rasterised at render_scale, with
// a default rus+eng language set and page segmentation mode carried as a
// literal PSM string (default "6").
func (c *Client) Recognize(ctx context.Context, pdfBytes []byte, page int, scale float64, languages []string, psm string) (text string, err error) {
	start := time.Now()
	defer func() {
		kind := ""
		if err != nil {
			kind = string(errkind.KindOf(err))
		}
		c.metrics.RecordRecognize(time.Since(start), kind)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TimeoutSec.Duration())
	defer cancel()

	meta := recognizeRequest{
		Page:      page,
		Scale:     scale,
		Languages: strings.Join(languages, "+"),
		PSM:       psm,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", errkind.Wrap(errkind.Validation, "ocr: marshal metadata", err)
	}

	var body bytes.Buffer
	boundary := "zakupai-ocr-boundary"
	body.WriteString("--" + boundary + "\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"metadata\"\r\n\r\n")
	body.Write(metaJSON)
	body.WriteString("\r\n--" + boundary + "\r\n")
	body.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"page.pdf\"\r\n")
	body.WriteString("Content-Type: application/pdf\r\n\r\n")
	body.Write(pdfBytes)
	body.WriteString("\r\n--" + boundary + "--\r\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/recognize", &body)
	if err != nil {
		return "", errkind.Wrap(errkind.Validation, "ocr: build request", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errkind.Wrap(errkind.Timeout, "ocr: deadline exceeded", err)
		}
		return "", errkind.Wrap(errkind.OCRFailed, "ocr: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", errkind.New(errkind.OCRFailed, fmt.Sprintf("ocr: upstream status %d: %s", resp.StatusCode, respBody))
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errkind.Wrap(errkind.OCRFailed, "ocr: decode response", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", errkind.New(errkind.EmptyAfterOCR, "ocr: empty text returned")
	}
	return out.Text, nil
}

// Ping checks reachability for the /etl/ocr readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return errkind.Wrap(errkind.OCRFailed, "ping: build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.OCRFailed, "ping: request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errkind.New(errkind.OCRFailed, fmt.Sprintf("ping: status %d", resp.StatusCode))
	}
	return nil
}

// Package config provides configuration loading for the ETL core.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete ETL core configuration, one sub-config per
// component enumerated in the external-interfaces env var list.
type Config struct {
	Fetcher        FetcherConfig     `koanf:"fetcher"`
	Unpacker       UnpackerConfig    `koanf:"unpacker"`
	Extractor      ExtractorConfig   `koanf:"extractor"`
	OCR            OCRConfig         `koanf:"ocr"`
	Embedder       EmbedderConfig    `koanf:"embedder"`
	WorkerPool     WorkerPoolConfig  `koanf:"worker_pool"`
	RelStore       RelStoreConfig    `koanf:"relstore"`
	VectorStore    VectorStoreConfig `koanf:"vectorstore"`
	LotFeed        LotFeedConfig     `koanf:"lot_feed"`
	HTTP           HTTPConfig        `koanf:"http"`
	Reconcile      ReconcileConfig   `koanf:"reconcile"`
	CollectionName string            `koanf:"collection_name"`
}

// FetcherConfig bounds the attachment-download step.
type FetcherConfig struct {
	MaxFileBytes    int64    `koanf:"max_file_bytes"`
	FetchTimeoutSec Duration `koanf:"fetch_timeout_sec"`
}

// UnpackerConfig bounds ZIP archive handling.
type UnpackerConfig struct {
	MaxFileBytes int64 `koanf:"max_file_bytes"`
}

// ExtractorConfig drives the text-layer/OCR decision.
type ExtractorConfig struct {
	TextThresholdChars int     `koanf:"text_threshold_chars"`
	RenderScale        float64 `koanf:"render_scale"`
}

// OCRConfig configures the external OcrEngine adapter.
type OCRConfig struct {
	URL        string   `koanf:"url"`
	TimeoutSec Duration `koanf:"timeout_sec"`
	Languages  string   `koanf:"languages"`
	PSM        string   `koanf:"psm"`
}

// EmbedderConfig configures the external Embedder adapter.
type EmbedderConfig struct {
	URL          string   `koanf:"url"`
	EmbeddingDim int      `koanf:"embedding_dim"`
	TimeoutSec   Duration `koanf:"timeout_sec"`
}

// WorkerPoolConfig bounds ingestion concurrency.
type WorkerPoolConfig struct {
	MaxWorkers    int      `koanf:"max_workers"`
	QueueCapacity int      `koanf:"queue_capacity"`
	RetriesMax    uint     `koanf:"retries_max"`
	BatchTimeout  Duration `koanf:"batch_timeout"`
}

// RelStoreConfig configures the relational document store.
type RelStoreConfig struct {
	DSN        Secret   `koanf:"dsn"`
	TimeoutSec Duration `koanf:"timeout_sec"`
}

// VectorStoreConfig configures the Qdrant-backed vector store.
type VectorStoreConfig struct {
	URL                     string   `koanf:"url"`
	MaxRetries              int      `koanf:"max_retries"`
	RetryBackoff            Duration `koanf:"retry_backoff"`
	CircuitBreakerThreshold int      `koanf:"circuit_breaker_threshold"`
}

// LotFeedConfig configures the upstream procurement feed adapter.
type LotFeedConfig struct {
	URL  string `koanf:"url"`
	Auth Secret `koanf:"auth"`
}

// HTTPConfig configures the inbound HTTP surface.
type HTTPConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ReconcileConfig configures the optional orphan-reconciliation loop,
// disabled by default.
type ReconcileConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Interval Duration `koanf:"interval"`
}

// applyDefaults fills in every configuration default.
func applyDefaults(cfg *Config) {
	if cfg.Fetcher.MaxFileBytes == 0 {
		cfg.Fetcher.MaxFileBytes = 50 * 1024 * 1024
	}
	if cfg.Fetcher.FetchTimeoutSec == 0 {
		cfg.Fetcher.FetchTimeoutSec = Duration(60 * time.Second)
	}
	if cfg.Unpacker.MaxFileBytes == 0 {
		cfg.Unpacker.MaxFileBytes = cfg.Fetcher.MaxFileBytes
	}
	if cfg.Extractor.TextThresholdChars == 0 {
		cfg.Extractor.TextThresholdChars = 200
	}
	if cfg.Extractor.RenderScale == 0 {
		cfg.Extractor.RenderScale = 2.0
	}
	if cfg.OCR.TimeoutSec == 0 {
		cfg.OCR.TimeoutSec = Duration(120 * time.Second)
	}
	if cfg.OCR.Languages == "" {
		cfg.OCR.Languages = "rus+eng"
	}
	if cfg.OCR.PSM == "" {
		cfg.OCR.PSM = "6"
	}
	if cfg.Embedder.EmbeddingDim == 0 {
		cfg.Embedder.EmbeddingDim = 384
	}
	if cfg.Embedder.TimeoutSec == 0 {
		cfg.Embedder.TimeoutSec = Duration(30 * time.Second)
	}
	if cfg.RelStore.TimeoutSec == 0 {
		cfg.RelStore.TimeoutSec = Duration(10 * time.Second)
	}
	if cfg.WorkerPool.MaxWorkers == 0 {
		cfg.WorkerPool.MaxWorkers = 4
	}
	if cfg.WorkerPool.QueueCapacity == 0 {
		cfg.WorkerPool.QueueCapacity = 256
	}
	if cfg.WorkerPool.RetriesMax == 0 {
		cfg.WorkerPool.RetriesMax = 2
	}
	if cfg.WorkerPool.BatchTimeout == 0 {
		cfg.WorkerPool.BatchTimeout = Duration(30 * time.Minute)
	}
	if cfg.VectorStore.MaxRetries == 0 {
		cfg.VectorStore.MaxRetries = 3
	}
	if cfg.VectorStore.RetryBackoff == 0 {
		cfg.VectorStore.RetryBackoff = Duration(500 * time.Millisecond)
	}
	if cfg.VectorStore.CircuitBreakerThreshold == 0 {
		cfg.VectorStore.CircuitBreakerThreshold = 5
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Reconcile.Interval == 0 {
		cfg.Reconcile.Interval = Duration(15 * time.Minute)
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = "etl_documents"
	}
}

// Validate checks config invariants that applyDefaults cannot repair.
func (c *Config) Validate() error {
	if c.Fetcher.MaxFileBytes <= 0 {
		return fmt.Errorf("fetcher.max_file_bytes must be positive, got %d", c.Fetcher.MaxFileBytes)
	}
	if c.Extractor.TextThresholdChars < 0 {
		return fmt.Errorf("extractor.text_threshold_chars must be >= 0, got %d", c.Extractor.TextThresholdChars)
	}
	if c.Embedder.EmbeddingDim <= 0 {
		return fmt.Errorf("embedder.embedding_dim must be positive, got %d", c.Embedder.EmbeddingDim)
	}
	if c.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker_pool.max_workers must be positive, got %d", c.WorkerPool.MaxWorkers)
	}
	if c.WorkerPool.QueueCapacity <= 0 {
		return fmt.Errorf("worker_pool.queue_capacity must be positive, got %d", c.WorkerPool.QueueCapacity)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be 1-65535, got %d", c.HTTP.Port)
	}
	if !c.RelStore.DSN.IsSet() {
		return fmt.Errorf("relstore.dsn is required")
	}
	if c.VectorStore.URL == "" {
		return fmt.Errorf("vectorstore.url is required")
	}
	if c.Embedder.URL == "" {
		return fmt.Errorf("embedder.url is required")
	}
	if c.LotFeed.URL == "" {
		return fmt.Errorf("lot_feed.url is required")
	}
	return nil
}

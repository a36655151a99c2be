// Package config provides configuration loading for the ETL core.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envMap maps flat environment variable names onto the dotted koanf paths
// of the Config struct in config.go. Koanf's default env transformer can't express
// this (it would need a nested key per underscore), so the mapping is
// explicit.
var envMap = map[string]string{
	"MAX_FILE_BYTES":        "fetcher.max_file_bytes",
	"FETCH_TIMEOUT_SEC":     "fetcher.fetch_timeout_sec",
	"OCR_TIMEOUT_SEC":       "ocr.timeout_sec",
	"OCR_LANGUAGES":         "ocr.languages",
	"OCR_PSM":               "ocr.psm",
	"OCR_URL":               "ocr.url",
	"TEXT_THRESHOLD_CHARS":  "extractor.text_threshold_chars",
	"RENDER_SCALE":          "extractor.render_scale",
	"MAX_WORKERS":           "worker_pool.max_workers",
	"QUEUE_CAPACITY":        "worker_pool.queue_capacity",
	"RETRIES_MAX":           "worker_pool.retries_max",
	"BATCH_TIMEOUT":         "worker_pool.batch_timeout",
	"EMBEDDING_DIM":         "embedder.embedding_dim",
	"EMBEDDER_URL":          "embedder.url",
	"EMBEDDER_TIMEOUT_SEC":  "embedder.timeout_sec",
	"RELATIONAL_DSN":        "relstore.dsn",
	"RELSTORE_TIMEOUT_SEC":  "relstore.timeout_sec",
	"VECTOR_STORE_URL":      "vectorstore.url",
	"LOT_FEED_URL":          "lot_feed.url",
	"LOT_FEED_AUTH":         "lot_feed.auth",
	"COLLECTION_NAME":       "collection_name",
	"HTTP_PORT":             "http.port",
	"HTTP_SHUTDOWN_TIMEOUT": "http.shutdown_timeout",
	"RECONCILE_ENABLED":     "reconcile.enabled",
	"RECONCILE_INTERVAL":    "reconcile.interval",
}

// Load reads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest): environment variables, YAML file,
// hardcoded defaults.
func Load(yamlBytes []byte) (*Config, error) {
	k := koanf.New(".")

	if len(yamlBytes) > 0 {
		if err := k.Load(rawbytes.Provider(yamlBytes), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		path, ok := envMap[strings.ToUpper(key)]
		if !ok {
			return "", nil
		}
		return path, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

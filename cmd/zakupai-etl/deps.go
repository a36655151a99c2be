package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/embedder"
	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/extractor"
	"github.com/zakupai/etl-core/internal/fetcher"
	"github.com/zakupai/etl-core/internal/indexer"
	"github.com/zakupai/etl-core/internal/logging"
	"github.com/zakupai/etl-core/internal/lotfeed"
	"github.com/zakupai/etl-core/internal/ocr"
	"github.com/zakupai/etl-core/internal/pipeline"
	"github.com/zakupai/etl-core/internal/query"
	"github.com/zakupai/etl-core/internal/reconcile"
	"github.com/zakupai/etl-core/internal/relstore"
	"github.com/zakupai/etl-core/internal/vectorstore"
)

// deps holds every adapter and composed service the CLI's subcommands share.
type deps struct {
	cfg *config.Config

	relStore    *relstore.Store
	vectorStore *vectorstore.Store
	embedder    *embedder.Client
	ocr         *ocr.Client
	lotFeed     *lotfeed.Client
	fetcher     *fetcher.Client

	extractor *extractor.Extractor
	indexer   *indexer.Indexer
	pipeline  *pipeline.Pipeline
	query     *query.Service
	reconcile *reconcile.Scanner

	logger    *zap.Logger
	metricsReg prometheus.Registerer
}

func loadConfig() (*config.Config, error) {
	var yamlBytes []byte
	if configPath != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		yamlBytes = b
	}
	return config.Load(yamlBytes)
}

func buildDeps(cfg *config.Config, logger *zap.Logger) (*deps, error) {
	reg := prometheus.DefaultRegisterer
	retry := errkind.RetryPolicy{MaxRetries: cfg.WorkerPool.RetriesMax}

	// Pool sizing leaves two spare connections over the worker count: one for
	// the HTTP handler goroutine, one for the reconciliation scanner, so
	// neither blocks waiting on a connection held by an ingest worker.
	relStore, err := relstore.Open(cfg.RelStore, cfg.WorkerPool.MaxWorkers+2, retry)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}

	vectorStore, err := vectorstore.NewStore(cfg.VectorStore, cfg.Embedder.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("connect to vector store: %w", err)
	}

	embedderClient := embedder.NewClient(cfg.Embedder, reg, retry)
	ocrClient := ocr.NewClient(cfg.OCR, reg)
	lotFeedClient := lotfeed.NewClient(cfg.LotFeed)
	fetcherClient := fetcher.NewClient(cfg.Fetcher, reg, retry)

	extractorService := extractor.New(cfg.Extractor, cfg.OCR, ocrClient)
	indexerService := indexer.New(relStore, embedderClient, vectorStore, cfg.CollectionName)
	pipelineService := pipeline.New(fetcherClient, extractorService, indexerService, cfg.Fetcher.MaxFileBytes, logger)
	queryService := query.New(embedderClient, vectorStore, relStore)

	reconcileScanner := reconcile.New(relStore, vectorStore, embedderClient, reconcile.Config{
		Interval:   cfg.Reconcile.Interval.Duration(),
		Collection: cfg.CollectionName,
	}, logger)

	return &deps{
		cfg:         cfg,
		relStore:    relStore,
		vectorStore: vectorStore,
		embedder:    embedderClient,
		ocr:         ocrClient,
		lotFeed:     lotFeedClient,
		fetcher:     fetcherClient,
		extractor:   extractorService,
		indexer:     indexerService,
		pipeline:    pipelineService,
		query:       queryService,
		reconcile:   reconcileScanner,
		logger:      logger,
		metricsReg:  reg,
	}, nil
}

func (d *deps) Close() {
	if d.relStore != nil {
		d.relStore.Close()
	}
	if d.vectorStore != nil {
		d.vectorStore.Close()
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := logging.NewDefaultConfig()
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		cfg.Format = logFormat
	}
	if level, err := logging.LevelFromString(os.Getenv("LOG_LEVEL")); err == nil {
		cfg.Level = level
	}

	logger, err := logging.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Underlying(), nil
}

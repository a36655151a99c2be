// Package reconcile runs an optional background scan that finds Documents
// whose Embedding never made it into the vector store and re-embeds them.
// Disabled by default: ingestion already treats "document exists, embedding
// doesn't" as a tolerated transient state, so this is a best-effort repair
// loop, not a correctness requirement.
package reconcile

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zakupai/etl-core/internal/models"
)

// RelationalStore is the subset of relstore.Store the scanner needs.
type RelationalStore interface {
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

// VectorStore is the subset of vectorstore.Store the scanner needs.
type VectorStore interface {
	Exists(ctx context.Context, collection, vectorID string) (bool, error)
	Upsert(ctx context.Context, collection, vectorID string, vector []float32, metadata map[string]string) error
}

// Embedder is the subset of embedder.Client the scanner needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the scan loop.
type Config struct {
	Interval   time.Duration
	Collection string
}

// Scanner periodically lists every Document and re-embeds any whose vector
// is missing from collection.
type Scanner struct {
	rel      RelationalStore
	vectors  VectorStore
	embedder Embedder
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	running bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Scanner. Interval defaults to 15 minutes; collection defaults
// to "etl_documents".
func New(rel RelationalStore, vectors VectorStore, embedder Embedder, cfg Config, logger *zap.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Collection == "" {
		cfg.Collection = "etl_documents"
	}
	return &Scanner{
		rel:      rel,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins periodic scanning in the background. Returns immediately.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("starting orphan reconciliation scanner", zap.Duration("interval", s.cfg.Interval))
	}
	go s.run(ctx)
}

// Stop halts the scanner and waits for the current scan, if any, to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.doneCh)

	s.scanOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

// scanOnce lists every Document and re-embeds any whose vector_id has no
// point in the vector store. One failure does not stop the rest of the scan.
func (s *Scanner) scanOnce(ctx context.Context) {
	docs, err := s.rel.ListDocuments(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("reconciliation scan: list documents failed", zap.Error(err))
		}
		return
	}

	var repaired, failed int
	for _, doc := range docs {
		if ctx.Err() != nil {
			return
		}
		vectorID := models.VectorIDFor(doc.DocID)
		exists, err := s.vectors.Exists(ctx, s.cfg.Collection, vectorID)
		if err != nil {
			failed++
			continue
		}
		if exists {
			continue
		}

		vector, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			failed++
			continue
		}
		metadata := map[string]string{
			"doc_id":    strconv.FormatInt(doc.DocID, 10),
			"file_name": doc.FileName,
			"lot_id":    doc.LotID,
			"source":    s.cfg.Collection,
		}
		if err := s.vectors.Upsert(ctx, s.cfg.Collection, vectorID, vector, metadata); err != nil {
			failed++
			continue
		}
		repaired++
	}

	if s.logger != nil && (repaired > 0 || failed > 0) {
		s.logger.Info("reconciliation scan completed",
			zap.Int("scanned", len(docs)),
			zap.Int("repaired", repaired),
			zap.Int("failed", failed))
	}
}

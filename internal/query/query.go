// Package query implements the semantic-search read path: embed the query
// text, ask the vector store for its nearest neighbors, and hydrate each hit
// with its relational row for a content preview.
package query

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/models"
	"github.com/zakupai/etl-core/internal/vectorstore"
)

const previewLen = 240

// Embedder is the subset of embedder.Client the query path needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the subset of vectorstore.Store the query path needs.
type VectorStore interface {
	TopK(ctx context.Context, collection string, vector []float32, k int) ([]vectorstore.SearchHit, error)
}

// RelationalStore is the subset of relstore.Store the query path needs.
type RelationalStore interface {
	GetByDocID(ctx context.Context, docID int64) (*models.Document, error)
}

// Hit is one ranked, hydrated search result.
type Hit struct {
	DocID          int64             `json:"doc_id"`
	FileName       string            `json:"file_name"`
	Score          float32           `json:"score"`
	ContentPreview string            `json:"content_preview"`
	Metadata       map[string]string `json:"metadata"`
}

// Service answers Search requests.
type Service struct {
	embedder Embedder
	vectors  VectorStore
	rel      RelationalStore
}

// New builds a Service.
func New(embedder Embedder, vectors VectorStore, rel RelationalStore) *Service {
	return &Service{embedder: embedder, vectors: vectors, rel: rel}
}

// Search embeds queryText, retrieves its nearest neighbors, and hydrates
// each hit. topK must be between 1 and 50 inclusive: callers that want a
// default when the caller omitted top_k entirely must apply it themselves
// before calling Search, since 0 here is a validation error, not a
// placeholder for "unset". collection defaults to "etl_documents" when
// empty.
func (s *Service) Search(ctx context.Context, queryText string, topK int, collection string) ([]Hit, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, errkind.New(errkind.Validation, "query must not be empty")
	}
	if utf8.RuneCountInString(queryText) > 512 {
		return nil, errkind.New(errkind.Validation, "query must be at most 512 characters")
	}
	if topK < 1 || topK > 50 {
		return nil, errkind.New(errkind.Validation, "top_k must be between 1 and 50")
	}
	if collection == "" {
		collection = "etl_documents"
	}

	vector, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, errkind.Wrap(errkind.EmbedUnavailable, "query: embed query text", err)
	}

	results, err := s.vectors.TopK(ctx, collection, vector, topK)
	if err != nil {
		return nil, errkind.Wrap(errkind.VectorStoreUnavailable, "query: vector store top-k", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		docID, ok := parseDocID(r.VectorID)
		if !ok {
			continue
		}
		doc, err := s.rel.GetByDocID(ctx, docID)
		if err != nil {
			return nil, errkind.Wrap(errkind.DBUnavailable, "query: hydrate hit", err)
		}
		if doc == nil {
			// Embedding without a Document: tolerated, dropped silently.
			continue
		}
		hits = append(hits, Hit{
			DocID:          doc.DocID,
			FileName:       doc.FileName,
			Score:          r.Score,
			ContentPreview: preview(doc.Content),
			Metadata:       r.Metadata,
		})
	}
	return hits, nil
}

func preview(content string) string {
	if len(content) <= previewLen {
		return content
	}
	return content[:previewLen]
}

func parseDocID(vectorID string) (int64, bool) {
	const prefix = "etl_doc:"
	if !strings.HasPrefix(vectorID, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(vectorID, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Package indexer implements an idempotent upsert into the relational store
// followed by an embed-and-upsert into the vector store, preserving the
// one-way Document-implies-Embedding pairing.
package indexer

import (
	"context"
	"strconv"

	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/models"
)

// RelationalStore is the subset of relstore.Store the Indexer needs. It
// returns primitives rather than relstore.InsertResult so the Indexer stays
// decoupled from that package's concrete types.
type RelationalStore interface {
	Insert(ctx context.Context, lotID, fileName, fileType, content string) (docID int64, existing bool, err error)
}

// Embedder is the subset of embedder.Client the Indexer needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the subset of vectorstore.Store the Indexer needs.
type VectorStore interface {
	Upsert(ctx context.Context, collection, vectorID string, vector []float32, metadata map[string]string) error
}

// Indexer wires the relational and vector stores together for one
// (lot_id, file_name, content) triple.
type Indexer struct {
	rel        RelationalStore
	embedder   Embedder
	vectors    VectorStore
	collection string
}

// New builds an Indexer. collection is the vector-store collection every
// Embedding lands in (default "etl_documents").
func New(rel RelationalStore, embedder Embedder, vectors VectorStore, collection string) *Indexer {
	return &Indexer{rel: rel, embedder: embedder, vectors: vectors, collection: collection}
}

// Result reports what Index did.
type Result struct {
	DocID  int64
	Action models.IndexAction
}

// Index performs an idempotent relational insert, then embeds and upserts
// into the vector store. A failure between the relational insert and the
// vector upsert leaves a Document with no Embedding: rather than discard the
// already-assigned docID, Index reports this as a partial success
// (Action=IndexEmbeddingPending) so callers can surface a 200 with a
// pending-embedding warning instead of failing the whole ingest. A
// background reconciliation scan re-embeds these orphans later.
func (ix *Indexer) Index(ctx context.Context, lotID, fileName, fileType, content string) (*Result, error) {
	if len(content) == 0 {
		return nil, errkind.New(errkind.Validation, "indexer: content must not be empty")
	}

	docID, existing, err := ix.rel.Insert(ctx, lotID, fileName, fileType, content)
	if err != nil {
		return nil, err
	}
	if existing {
		return &Result{DocID: docID, Action: models.IndexDuplicateKept}, nil
	}

	vector, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		return &Result{DocID: docID, Action: models.IndexEmbeddingPending}, nil
	}

	vectorID := models.VectorIDFor(docID)
	metadata := map[string]string{
		"doc_id":    strconv.FormatInt(docID, 10),
		"file_name": fileName,
		"lot_id":    lotID,
		"source":    ix.collection,
	}
	if err := ix.vectors.Upsert(ctx, ix.collection, vectorID, vector, metadata); err != nil {
		return &Result{DocID: docID, Action: models.IndexEmbeddingPending}, nil
	}

	return &Result{DocID: docID, Action: models.IndexInserted}, nil
}

// Package models defines the core entities shared across the ETL pipeline:
// lots pulled from the upstream procurement feed, documents and embeddings
// persisted by the Indexer, and the jobs the worker pool executes.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AttachmentType identifies the declared type of an attachment.
type AttachmentType string

const (
	AttachmentPDF AttachmentType = "pdf"
	AttachmentZip AttachmentType = "zip"
)

// AttachmentRef is a single file linked to a Lot.
type AttachmentRef struct {
	URL          string
	DeclaredName string
	DeclaredType AttachmentType
}

// Lot is a procurement line item emitted by the LotFeed. Treated as an
// immutable snapshot for the lifetime of one RunBatch.
type Lot struct {
	LotID          string
	Title          string
	Description    string
	Amount         decimal.Decimal // KZT
	CustomerBIN    string          // 12-digit
	AttachmentRefs []AttachmentRef
}

// MatchesKeyword reports whether any of the given lowercase keywords appears
// as a case-insensitive substring of the lot's title or description.
func (l Lot) MatchesKeyword(keywordsLower []string) bool {
	title := strings.ToLower(l.Title)
	desc := strings.ToLower(l.Description)
	for _, kw := range keywordsLower {
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// ExtractionMode records how a Document's content was produced.
type ExtractionMode string

const (
	ExtractionTextLayer ExtractionMode = "text_layer"
	ExtractionOCR       ExtractionMode = "ocr"
	ExtractionMixed     ExtractionMode = "mixed"
)

// Document is a persisted, extracted-text row. Owned exclusively by
// RelationalStore; at most one exists per (LotID, FileName) pair.
type Document struct {
	DocID     int64
	LotID     string
	FileName  string
	FileType  string
	Content   string
	CreatedAt time.Time
}

// VectorIDFor derives the deterministic vector-store document id from a
// relational row id.
func VectorIDFor(docID int64) string {
	return "etl_doc:" + strconv.FormatInt(docID, 10)
}

// IndexAction reports what the Indexer did with a Document on upsert.
type IndexAction string

const (
	IndexInserted        IndexAction = "inserted"
	IndexDuplicateKept   IndexAction = "duplicate_kept"
	IndexEmbeddingPending IndexAction = "embedding_pending"
)

// JobStatus is the lifecycle state of an IngestJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobFetching   JobStatus = "fetching"
	JobExtracting JobStatus = "extracting"
	JobIndexing   JobStatus = "indexing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// IngestJob is one attachment's unit of work through the pipeline.
type IngestJob struct {
	JobID         string
	LotID         string
	Attachment    AttachmentRef
	Status        JobStatus
	ErrorKind     string
	DuplicateKept bool
	StartedAt     time.Time
	FinishedAt    time.Time
}


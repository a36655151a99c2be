// Package pipeline drives one IngestJob through Fetcher -> Unpacker ->
// Extractor -> Indexer. For a ZIP attachment, every contained PDF is handled
// sequentially within this single job.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/extractor"
	"github.com/zakupai/etl-core/internal/fetcher"
	"github.com/zakupai/etl-core/internal/indexer"
	"github.com/zakupai/etl-core/internal/models"
	"github.com/zakupai/etl-core/internal/unpacker"
)

// Fetcher is the subset of fetcher.Client the pipeline needs.
type Fetcher interface {
	Fetch(ctx context.Context, url, authHeader string) (*fetcher.Result, error)
}

// Extractor is the subset of extractor.Extractor the pipeline needs.
type Extractor interface {
	Extract(ctx context.Context, pdfBytes []byte) (*extractor.Result, error)
}

// Indexer is the subset of indexer.Indexer the pipeline needs.
type Indexer interface {
	Index(ctx context.Context, lotID, fileName, fileType, content string) (*indexer.Result, error)
}

// Pipeline runs the full per-attachment path for a worker pool job.
type Pipeline struct {
	fetch    Fetcher
	extract  Extractor
	index    Indexer
	maxBytes int64
	logger   *zap.Logger
}

// New builds a Pipeline. maxBytes bounds both the fetch and the unpack step;
// the two stages share one configured cap.
func New(fetch Fetcher, extract Extractor, index Indexer, maxBytes int64, logger *zap.Logger) *Pipeline {
	return &Pipeline{fetch: fetch, extract: extract, index: index, maxBytes: maxBytes, logger: logger}
}

// Run implements workerpool.Runner: it executes job's attachment through
// every pipeline stage and returns job updated with its terminal status.
func (p *Pipeline) Run(ctx context.Context, job models.IngestJob) models.IngestJob {
	job.StartedAt = time.Now()

	result, err := p.fetch.Fetch(ctx, job.Attachment.URL, "")
	if err != nil {
		return p.fail(job, "fetch", err)
	}

	job.Status = models.JobExtracting
	units, err := unpacker.Unpack(result.Bytes, job.Attachment.DeclaredName, p.maxBytes)
	if err != nil {
		return p.fail(job, "unpack", err)
	}

	job.Status = models.JobIndexing
	anyDuplicate := false
	for _, unit := range units {
		if ctx.Err() != nil {
			return p.fail(job, "cancelled", errkind.Wrap(errkind.Cancelled, "pipeline: context done", ctx.Err()))
		}

		extracted, err := p.extract.Extract(ctx, unit.PDFBytes)
		if err != nil {
			return p.fail(job, "extract", err)
		}

		indexed, err := p.index.Index(ctx, job.LotID, unit.FileName, string(job.Attachment.DeclaredType), extracted.Text)
		if err != nil {
			return p.fail(job, "index", err)
		}
		if indexed.Action == models.IndexDuplicateKept {
			anyDuplicate = true
		}
	}

	job.Status = models.JobDone
	job.DuplicateKept = anyDuplicate
	job.FinishedAt = time.Now()
	return job
}

func (p *Pipeline) fail(job models.IngestJob, stage string, err error) models.IngestJob {
	job.Status = models.JobFailed
	job.ErrorKind = string(errkind.KindOf(err))
	job.FinishedAt = time.Now()
	if p.logger != nil {
		p.logger.Warn("ingest job failed",
			zap.String("job_id", job.JobID),
			zap.String("stage", stage),
			zap.String("error_kind", job.ErrorKind),
			zap.Error(err))
	}
	return job
}

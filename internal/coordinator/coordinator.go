// Package coordinator drives one ingestion batch end-to-end: pull lots,
// filter by keyword, enqueue one job per attachment, wait for the pool to
// drain, and summarize.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zakupai/etl-core/internal/models"
	"github.com/zakupai/etl-core/internal/workerpool"
)

// LotFeed is the subset of lotfeed.Client the Coordinator needs.
type LotFeed interface {
	Fetch(ctx context.Context, since string, limit int) ([]models.Lot, error)
}

// Pool is the subset of workerpool.Pool the Coordinator needs.
type Pool interface {
	Start(ctx context.Context)
	Enqueue(ctx context.Context, job models.IngestJob) error
	Drain()
}

// Report summarizes the outcome of one ingestion batch.
type Report struct {
	LotsFetched         int            `json:"lots_fetched"`
	LotsMatched         int            `json:"lots_matched"`
	AttachmentsEnqueued int            `json:"attachments_enqueued"`
	DocumentsInserted   int            `json:"documents_inserted"`
	DocumentsDuplicate  int            `json:"documents_duplicate"`
	FailuresByKind      map[string]int `json:"failures_by_kind"`
}

// recordingHook aggregates terminal job statuses into a Report. Safe for
// concurrent use: every Pool worker goroutine reports through it.
type recordingHook struct {
	mu     sync.Mutex
	report *Report
}

func newRecordingHook() *recordingHook {
	return &recordingHook{report: &Report{FailuresByKind: make(map[string]int)}}
}

func (h *recordingHook) OnJobStatus(job models.IngestJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch job.Status {
	case models.JobDone:
		if job.DuplicateKept {
			h.report.DocumentsDuplicate++
		} else {
			h.report.DocumentsInserted++
		}
	case models.JobFailed:
		kind := job.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		h.report.FailuresByKind[kind]++
	}
}

func (h *recordingHook) snapshot() *Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	failures := make(map[string]int, len(h.report.FailuresByKind))
	for k, v := range h.report.FailuresByKind {
		failures[k] = v
	}
	return &Report{
		DocumentsInserted:  h.report.DocumentsInserted,
		DocumentsDuplicate: h.report.DocumentsDuplicate,
		FailuresByKind:     failures,
	}
}

// Coordinator implements RunBatch.
type Coordinator struct {
	feed     LotFeed
	newPool  func(hook workerpool.Hook) Pool
	logger   *zap.Logger
	onBatch  func(batchID string, startedAt time.Time)
	onFinish func(batchID string, finishedAt time.Time, report *Report)
}

// New builds a Coordinator. newPool constructs a fresh worker pool (with its
// own queue/semaphore state) wired to the given observability hook, so every
// RunBatch call gets an isolated pool instance. onBatch/onFinish are
// optional batch-audit persistence hooks; either may be nil.
func New(
	feed LotFeed,
	newPool func(hook workerpool.Hook) Pool,
	logger *zap.Logger,
	onBatch func(batchID string, startedAt time.Time),
	onFinish func(batchID string, finishedAt time.Time, report *Report),
) *Coordinator {
	return &Coordinator{feed: feed, newPool: newPool, logger: logger, onBatch: onBatch, onFinish: onFinish}
}

// RunBatch pulls lots, enqueues matching attachments, and waits for the pool
// to drain. It never fails for partial ingestion failure; it fails only if
// the initial LotFeed.Fetch returns an error (with the lotfeed client that is
// unavailable, auth_rejected, or validation for a request it cannot build).
func (c *Coordinator) RunBatch(ctx context.Context, keywords []string, maxLots int, since string) (*Report, error) {
	batchID := uuid.NewString()
	startedAt := time.Now()
	if c.onBatch != nil {
		c.onBatch(batchID, startedAt)
	}

	lots, err := c.feed.Fetch(ctx, since, maxLots)
	if err != nil {
		return nil, err
	}

	keywordsLower := make([]string, len(keywords))
	for i, k := range keywords {
		keywordsLower[i] = strings.ToLower(k)
	}

	report := &Report{LotsFetched: len(lots), FailuresByKind: make(map[string]int)}
	hook := newRecordingHook()
	pool := c.newPool(hook)
	pool.Start(ctx)

	for _, lot := range lots {
		if !lot.MatchesKeyword(keywordsLower) {
			continue
		}
		report.LotsMatched++
		for _, ref := range lot.AttachmentRefs {
			job := models.IngestJob{
				JobID:      uuid.NewString(),
				LotID:      lot.LotID,
				Attachment: ref,
				Status:     models.JobPending,
			}
			if err := pool.Enqueue(ctx, job); err != nil {
				if c.logger != nil {
					c.logger.Warn("enqueue canceled", zap.String("lot_id", lot.LotID), zap.Error(err))
				}
				continue
			}
			report.AttachmentsEnqueued++
		}
	}

	pool.Drain()

	snapshot := hook.snapshot()
	report.DocumentsInserted = snapshot.DocumentsInserted
	report.DocumentsDuplicate = snapshot.DocumentsDuplicate
	for k, v := range snapshot.FailuresByKind {
		report.FailuresByKind[k] = v
	}

	if c.onFinish != nil {
		c.onFinish(batchID, time.Now(), report)
	}

	return report, nil
}


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zakupai/etl-core/internal/coordinator"
	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/workerpool"
)

// badArgsError marks a cobra RunE failure as an argument-validation error,
// so exitCodeFor can map it to exit code 64 instead of the generic 1.
type badArgsError struct{ err error }

func (e *badArgsError) Error() string { return e.err.Error() }
func (e *badArgsError) Unwrap() error { return e.err }

// lotFeedUnavailableError marks a cobra RunE failure as the LotFeed being
// unreachable or rejecting the credentials, mapped to exit code 2.
type lotFeedUnavailableError struct{ err error }

func (e *lotFeedUnavailableError) Error() string { return e.err.Error() }
func (e *lotFeedUnavailableError) Unwrap() error  { return e.err }

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*badArgsError); ok {
		return 64
	}
	if _, ok := err.(*lotFeedUnavailableError); ok {
		return 2
	}
	return 1
}

var (
	ingestKeywords string
	ingestMaxLots  int
	ingestSince    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion batch against the lot feed and print a JSON report",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestKeywords, "keywords", "", "comma-separated keywords to match lot titles/descriptions")
	ingestCmd.Flags().IntVar(&ingestMaxLots, "max-lots", 50, "maximum number of lots to pull from the feed")
	ingestCmd.Flags().StringVar(&ingestSince, "since", "", "ISO8601 timestamp: only lots updated since this time")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestMaxLots <= 0 {
		return &badArgsError{fmt.Errorf("--max-lots must be positive, got %d", ingestMaxLots)}
	}

	keywords := splitKeywords(ingestKeywords)
	if len(keywords) == 0 {
		return &badArgsError{fmt.Errorf("--keywords must name at least one keyword")}
	}

	cfg, err := loadConfig()
	if err != nil {
		return &badArgsError{err}
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	d, err := buildDeps(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.WorkerPool.BatchTimeout.Duration())
	defer cancel()

	newPool := func(hook workerpool.Hook) coordinator.Pool {
		return workerpool.New(d.cfg.WorkerPool, d.pipeline.Run, hook, d.metricsReg)
	}

	coord := coordinator.New(d.lotFeed, newPool, d.logger,
		func(batchID string, startedAt time.Time) {
			_ = d.relStore.RecordBatchStart(ctx, batchID, startedAt)
		},
		func(batchID string, finishedAt time.Time, report *coordinator.Report) {
			reportJSON, _ := json.Marshal(report)
			_ = d.relStore.RecordBatchFinish(ctx, batchID, finishedAt, string(reportJSON))
		},
	)

	report, err := coord.RunBatch(ctx, keywords, ingestMaxLots, ingestSince)
	if err != nil {
		if errkind.KindOf(err) == errkind.Unavailable || errkind.KindOf(err) == errkind.AuthRejected {
			return &lotFeedUnavailableError{err}
		}
		return err
	}

	out, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func splitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// ContextFields extracts job/batch/request correlation data from context so
// every log line a worker or handler emits carries it automatically.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if batchID := BatchIDFromContext(ctx); batchID != "" {
		fields = append(fields, zap.String("batch_id", batchID))
	}
	if jobID := JobIDFromContext(ctx); jobID != "" {
		fields = append(fields, zap.String("job_id", jobID))
	}
	if lotID := LotIDFromContext(ctx); lotID != "" {
		fields = append(fields, zap.String("lot_id", lotID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	return fields
}

type batchCtxKey struct{}
type jobCtxKey struct{}
type lotCtxKey struct{}
type requestCtxKey struct{}

// WithBatchID tags ctx with the ingestion batch id driving a RunBatch call.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchCtxKey{}, batchID)
}

// BatchIDFromContext extracts the batch id set by WithBatchID.
func BatchIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(batchCtxKey{}).(string)
	return s
}

// WithJobID tags ctx with the IngestJob id a worker is executing.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, jobID)
}

// JobIDFromContext extracts the job id set by WithJobID.
func JobIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(jobCtxKey{}).(string)
	return s
}

// WithLotID tags ctx with the lot id a job's attachment belongs to.
func WithLotID(ctx context.Context, lotID string) context.Context {
	return context.WithValue(ctx, lotCtxKey{}, lotID)
}

// LotIDFromContext extracts the lot id set by WithLotID.
func LotIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(lotCtxKey{}).(string)
	return s
}

// WithRequestID tags ctx with an inbound HTTP request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// loggerCtxKey is the context key for a *Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves a logger from context, falling back to a no-op
// logger so callers never need a nil check.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}

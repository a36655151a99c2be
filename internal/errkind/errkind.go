// Package errkind implements the ETL core's closed error taxonomy and the
// retry policy shared by every suspension point in the pipeline.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Kind is a closed set of error classifications: new kinds are added here,
// never invented ad hoc at call sites.
type Kind string

const (
	Validation             Kind = "validation"
	TooLarge               Kind = "too_large"
	UnsupportedType        Kind = "unsupported_type"
	Network                Kind = "network"
	Timeout                Kind = "timeout"
	HTTPStatus5xx          Kind = "http_status_5xx"
	HTTPStatus4xx          Kind = "http_status_4xx"
	CorruptArchive         Kind = "corrupt_archive"
	ArchiveBomb            Kind = "archive_bomb"
	NoPDFInArchive         Kind = "no_pdf_in_archive"
	UnreadablePDF          Kind = "unreadable_pdf"
	EmptyAfterOCR          Kind = "empty_after_ocr"
	OCRFailed              Kind = "ocr_failed"
	EmbedUnavailable       Kind = "embed_unavailable"
	VectorStoreUnavailable Kind = "vector_store_unavailable"
	DBUnavailable          Kind = "db_unavailable"
	Cancelled              Kind = "cancelled"
	Empty                  Kind = "empty"
	EmbeddingDimMismatch   Kind = "embedding_dim_mismatch"
	Unavailable            Kind = "unavailable"
	AuthRejected           Kind = "auth_rejected"
	UnknownCollection      Kind = "unknown_collection"
)

// retriable marks which kinds represent transient failures worth retrying.
var retriable = map[Kind]bool{
	Network:                true,
	Timeout:                true,
	HTTPStatus5xx:          true,
	OCRFailed:              true,
	EmbedUnavailable:       true,
	VectorStoreUnavailable: true,
	DBUnavailable:          true,
}

// IsRetriable reports whether a failure of this kind may be retried.
func IsRetriable(k Kind) bool {
	return retriable[k]
}

// Error wraps a Kind with a human-readable detail and an optional cause,
// in the style of fmt.Errorf("%w: %v", sentinel, err) but carrying a typed
// Kind instead of just a sentinel value.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error for the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error for the given kind around an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to the empty Kind if err is
// not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RetryPolicy configures the exponential backoff used at every suspension
// point in the pipeline: initial 500ms, capped at 8s, doubling, ±20% jitter.
type RetryPolicy struct {
	MaxRetries uint
}

// DefaultRetryPolicy retries transient failures twice before giving up.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2}

// Do runs fn, retrying transient failures per the policy. fn must return an
// error built via New/Wrap so IsRetriable can classify it; non-*Error errors
// are treated as permanent. Cancellation (ctx.Err() != nil) aborts retries
// immediately with a Cancelled-kind error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	op := func() (struct{}, error) {
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(Wrap(Cancelled, "context done", ctx.Err()))
		}
		if !IsRetriable(KindOf(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 8 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxRetries+1),
	)
	return err
}

// Package apperrors defines the error taxonomy shared by the store,
// vector client, embedding pool, and search service, each carrying a
// correlation id so a single request can be traced across logs.
package apperrors

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the error taxonomy for HTTP status mapping and
// retry policy; see Retryable.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindSearchTimeout     Kind = "search_timeout"
	KindVectorStorage     Kind = "vector_storage_error"
	KindEmbeddingFailed   Kind = "embedding_generation_failed"
	KindDatabaseTimeout   Kind = "database_timeout"
	KindDatabaseError     Kind = "database_error"
	KindIndexingFailed    Kind = "indexing_failed"
	KindAccessDenied      Kind = "access_denied"
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
)

// HTTPStatus is the status code a Kind maps to on the external
// surface. The core does not serve HTTP itself but callers (the MCP
// layer, a future HTTP handler) use this mapping directly.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindSearchTimeout, KindVectorStorage, KindDatabaseTimeout:
		return 503
	case KindEmbeddingFailed, KindDatabaseError, KindIndexingFailed:
		return 500
	case KindAccessDenied:
		return 401
	case KindRateLimitExceeded:
		return 429
	default:
		return 500
	}
}

// Retryable classes per the retry policy: exponential backoff
// 100ms*2^attempt, max 3 attempts, on these three kinds only.
func (k Kind) Retryable() bool {
	switch k {
	case KindSearchTimeout, KindVectorStorage, KindDatabaseTimeout:
		return true
	default:
		return false
	}
}

// Error is the concrete error type threaded through the core. Fields
// beyond Kind/Message/CorrelationID are optional context used by
// specific kinds (Field, Resource, Cause, RetryAfterSecond).
type Error struct {
	Kind             Kind
	Message          string
	CorrelationID    uuid.UUID
	Field            string
	Resource         string
	Cause            error
	RetryAfterSecond int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with a freshly minted correlation id.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, CorrelationID: uuid.New()}
}

// Wrap constructs an Error around a cause, preserving its message via
// %v in Error() while keeping Cause available to errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, CorrelationID: uuid.New(), Cause: cause}
}

func Validation(field, message string) *Error {
	e := New(KindValidation, message)
	e.Field = field
	return e
}

func NotFound(resource string) *Error {
	e := New(KindNotFound, "resource not found")
	e.Resource = resource
	return e
}

func SearchTimeout(query string, cause error) *Error {
	return Wrap(KindSearchTimeout, fmt.Sprintf("search timed out for query %q", query), cause)
}

func VectorStorage(operation, collection string, cause error) *Error {
	e := Wrap(KindVectorStorage, fmt.Sprintf("vector store operation %q on %q failed", operation, collection), cause)
	return e
}

func EmbeddingFailed(textCount int, modelName string, cause error) *Error {
	return Wrap(KindEmbeddingFailed, fmt.Sprintf("embedding generation failed for %d texts with model %q", textCount, modelName), cause)
}

func DatabaseTimeout(operation string, cause error) *Error {
	return Wrap(KindDatabaseTimeout, fmt.Sprintf("database operation %q timed out", operation), cause)
}

func DatabaseError(operation string, cause error) *Error {
	return Wrap(KindDatabaseError, fmt.Sprintf("database operation %q failed", operation), cause)
}

func IndexingFailed(filePath, repositoryID string, cause error) *Error {
	e := Wrap(KindIndexingFailed, fmt.Sprintf("indexing failed for %q in %q", filePath, repositoryID), cause)
	e.Resource = filePath
	return e
}

package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown source type or normaliser.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Nothing can be indexed or retrieved without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Pipeline Errors.

	// ErrParse indicates an unsupported or corrupt file.
	// Ingestion stops and the document is marked failed.
	ErrParse = errors.New("parse error")

	// ErrEmbeddingBackend indicates the embedding backend was unreachable
	// or returned an unusable response.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrDimensionMismatch indicates a vector does not match the configured dimensionality.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrMalformedResponse indicates a backend answered with a payload that cannot be used.
	// Retrying will not change the outcome.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrIndexUnavailable indicates the vector index could not be searched or written.
	// This is a service failure, never an empty result.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGeneration indicates the LLM backend failed to produce an answer.
	ErrGeneration = errors.New("generation error")

	// ErrPermissionDenied indicates the permission scope excludes all content.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDocumentBusy indicates a document is being processed and cannot be changed.
	ErrDocumentBusy = errors.New("document is being processed")

	// ErrRateLimited indicates a backend rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// DimensionMismatchError reports the expected and actual vector sizes.
type DimensionMismatchError struct {
	Got  int
	Want int
}

// Error implements error.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// ValidationError lists the request fields that failed validation.
// It matches ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

// Error implements error.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewDimensionMismatch returns a DimensionMismatchError.
func NewDimensionMismatch(got, want int) error {
	return &DimensionMismatchError{Got: got, Want: want}
}

// IsRetryable reports whether a caller may retry the operation that produced err.
// Transient backend failures qualify; structural mismatches never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	return errors.Is(err, ErrEmbeddingBackend) ||
		errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrGeneration) ||
		errors.Is(err, ErrRateLimited)
}

package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown extractor, backend or provider.
	ErrUnsupportedType = errors.New("unsupported type")

	// Ingestion Errors.

	// ErrEmptyDocument indicates a document has no text to chunk.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrPartialEmbedding indicates some chunks of a document could not be embedded.
	// The document is not indexed so it never shows a partial set of chunks.
	ErrPartialEmbedding = errors.New("some chunks failed to embed")

	// Embedding Errors.

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrEmbeddingFailed indicates the embedding backend rejected or failed a call.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// Index Errors.

	// ErrIndexUnavailable indicates the vector index is not configured or unreachable.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrIndexClosed indicates the vector index has been closed.
	ErrIndexClosed = errors.New("vector index closed")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// Generation Errors.

	// ErrLLMUnavailable indicates the generation service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrMalformedResponse indicates the model returned output that could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")
)

// IngestionError reports a document that could not be ingested.
type IngestionError struct {
	DocumentID string
	Filename   string
	Err        error
}

func (e *IngestionError) Error() string {
	name := e.Filename
	if name == "" {
		name = e.DocumentID
	}
	return fmt.Sprintf("ingest %s: %v", name, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// EmbeddingError reports a single input that could not be embedded.
// Index is the position of the input within the batch that was submitted.
type EmbeddingError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed item %d after %d attempt(s): %v", e.Index, e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// IndexError reports a failed vector index operation.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid or inconsistent setting.
// These are fatal at startup.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

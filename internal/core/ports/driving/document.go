package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// IngestRequest carries already-extracted text for ingestion.
type IngestRequest struct {
	// ID is optional. When empty it is derived from Filename so
	// re-ingesting the same file replaces the earlier version.
	ID string

	// Filename names the source document.
	Filename string

	// Content is the extracted text.
	Content string

	// Metadata is stored alongside the document.
	Metadata map[string]any
}

// IngestResult reports the outcome of ingesting one document.
type IngestResult struct {
	DocumentID string
	Filename   string
	Chunks     int

	// Replaced is true if the document existed before.
	Replaced bool

	// Err is set when ingestion failed; it is a *domain.IngestionError.
	Err error
}

// IngestService manages the write path: chunking, embedding and indexing.
type IngestService interface {
	// Ingest chunks, embeds and indexes a single document.
	// The document becomes searchable only once all its records are placed.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)

	// IngestBatch ingests several documents. A failing document does not
	// abort the others; its result carries the error.
	IngestBatch(ctx context.Context, reqs []IngestRequest) []IngestResult

	// Delete removes a document, its chunks and its vector records.
	Delete(ctx context.Context, documentID string) error

	// Reindex rebuilds every vector record from the stored documents.
	Reindex(ctx context.Context) ([]IngestResult, error)
}

// DocumentService exposes the ingested corpus.
type DocumentService interface {
	// List returns all ingested documents.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// GetDetails returns metadata for display.
	GetDetails(ctx context.Context, documentID string) (*DocumentDetails, error)

	// Chunks returns the document's chunks in sequence order.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// DocumentDetails provides a display view of document metadata.
type DocumentDetails struct {
	// ID is the unique document identifier.
	ID string

	// Filename is the source filename.
	Filename string

	// ChunkCount is the number of chunks.
	ChunkCount int

	// Characters is the length of the extracted text.
	Characters int

	// UploadedAt is when the document was ingested.
	UploadedAt time.Time

	// Metadata contains flattened key-value pairs for display.
	Metadata map[string]string
}

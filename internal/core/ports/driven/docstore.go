package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// SaveChunks replaces the stored chunks of the documents they belong to.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document, ordered by sequence.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns all documents ordered by filename.
	ListDocuments(ctx context.Context) ([]domain.Document, error)
}

// DeviationStore persists deviation records.
type DeviationStore interface {
	// SaveDeviation stores a deviation record.
	SaveDeviation(ctx context.Context, rec *domain.DeviationRecord) error

	// ListDeviations returns records that occurred at or after since, newest first.
	ListDeviations(ctx context.Context, since time.Time) ([]domain.DeviationRecord, error)
}

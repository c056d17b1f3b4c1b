package driven

import (
	"context"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// VectorIndex stores vector records and answers top-k similarity queries.
//
// Implementations must keep every record at the index dimension, treat
// writes of a single document as atomic with respect to concurrent
// searches, and order hits by descending score with ties broken by
// ascending chunk sequence.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID.
	// A record whose vector length differs from Dimensions fails the whole
	// call with a *domain.ConfigurationError and leaves the index unchanged.
	Upsert(ctx context.Context, records []domain.VectorRecord) error

	// DeleteDocument removes all records of a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// ReplaceDocument atomically swaps all records of a document for the given ones.
	ReplaceDocument(ctx context.Context, documentID string, records []domain.VectorRecord) error

	// Search returns at most k hits for the query vector, best first.
	Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]VectorHit, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the fixed vector length of the index.
	Dimensions() int

	// Metric returns the similarity metric used for scoring.
	Metric() domain.SimilarityMetric

	// Close flushes and releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Record is the matched vector record.
	Record domain.VectorRecord

	// Score is the similarity. Cosine scores lie in [-1, 1].
	Score float64
}

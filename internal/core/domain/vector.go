package domain

// SimilarityMetric selects how vector similarity is scored.
type SimilarityMetric string

// Supported similarity metrics.
const (
	// MetricCosine scores by cosine similarity. Vectors are L2-normalised
	// on write so the score is a plain dot product at query time.
	MetricCosine SimilarityMetric = "cosine"

	// MetricDot scores by raw dot product.
	MetricDot SimilarityMetric = "dot"
)

// IsValid returns true if the metric is recognised.
func (m SimilarityMetric) IsValid() bool {
	return m == MetricCosine || m == MetricDot
}

// String returns the string representation.
func (m SimilarityMetric) String() string {
	return string(m)
}

// VectorRecord is the persisted embedding of a single chunk.
// It references its chunk and document by ID; it does not own them.
type VectorRecord struct {
	// ID is the chunk ID.
	ID string

	// DocumentID is the document the chunk belongs to.
	DocumentID string

	// Sequence is the chunk's position within the document.
	Sequence int

	// Span locates the chunk text within the document.
	Span Span

	// Text is the chunk text, stored so search results need no second lookup.
	Text string

	// Source is the document filename, used for provenance headers.
	Source string

	// Vector is the embedding.
	Vector []float32
}

// Chunk rebuilds the chunk this record was derived from.
func (r VectorRecord) Chunk() Chunk {
	return Chunk{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Sequence:   r.Sequence,
		Span:       r.Span,
		Content:    r.Text,
	}
}

// SearchFilter restricts a vector search. The zero value matches everything.
type SearchFilter struct {
	// DocumentIDs limits results to the given documents when non-empty.
	DocumentIDs []string
}

// IsEmpty returns true if the filter matches every record.
func (f SearchFilter) IsEmpty() bool {
	return len(f.DocumentIDs) == 0
}

// Matches returns true if a record of the given document passes the filter.
func (f SearchFilter) Matches(documentID string) bool {
	if f.IsEmpty() {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

package domain

// RetrievalOptions configures a single retrieval.
// Zero values fall back to the configured defaults.
type RetrievalOptions struct {
	// K is the maximum number of results.
	K int

	// MinScore drops results scoring below it. Nil uses the default.
	MinScore *float64

	// PerDocumentCap limits results per document. Nil uses the default.
	PerDocumentCap *int

	// DocumentIDs restricts retrieval to the given documents.
	DocumentIDs []string
}

// ScoredChunk is a chunk paired with its similarity to a query.
type ScoredChunk struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Source is the filename of the owning document.
	Source string

	// Score is the similarity score. Higher is more relevant.
	Score float64
}

// FailureKind classifies why a retrieval produced no results.
type FailureKind string

// Retrieval failure kinds.
const (
	FailureEmptyQuery       FailureKind = "empty_query"
	FailureEmbedding        FailureKind = "embedding"
	FailureIndexUnavailable FailureKind = "index_unavailable"
	FailureTimeout          FailureKind = "timeout"
	FailureCancelled        FailureKind = "cancelled"
)

// RetrievalFailure describes a degraded retrieval.
type RetrievalFailure struct {
	Kind FailureKind
	Err  error
}

func (f *RetrievalFailure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *RetrievalFailure) Unwrap() error {
	return f.Err
}

// Retrieval is the outcome of a query against the index.
// Results are ordered by descending score. Failure is set when the
// retrieval degraded to an empty result instead of failing outright.
type Retrieval struct {
	Query   string
	Results []ScoredChunk
	Failure *RetrievalFailure
}

// IsEmpty returns true if no results were found.
func (r Retrieval) IsEmpty() bool {
	return len(r.Results) == 0
}

// Degraded returns true if the retrieval hit a failure.
func (r Retrieval) Degraded() bool {
	return r.Failure != nil
}

// Package vector holds the scoring and validation shared by the vector
// index backends.
package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// Normalize returns a unit-length copy of v. The zero vector is returned as a zero copy.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}

	result := make([]float32, len(v))
	if norm == 0 {
		return result
	}

	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		result[i] = float32(float64(x) * inv)
	}
	return result
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Prepare readies a vector for storage or querying under the metric.
// Cosine vectors are normalised so scoring is a plain dot product.
func Prepare(v []float32, metric domain.SimilarityMetric) []float32 {
	if metric == domain.MetricCosine {
		return Normalize(v)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// CheckDimensions returns a *domain.ConfigurationError if any record's
// vector length differs from dims.
func CheckDimensions(records []domain.VectorRecord, dims int) error {
	for _, r := range records {
		if len(r.Vector) != dims {
			return MismatchError(len(r.Vector), dims)
		}
	}
	return nil
}

// MismatchError builds the error reported when a vector does not fit the index.
func MismatchError(got, want int) error {
	return &domain.ConfigurationError{
		Field: "embedding.dimensions",
		Err:   fmt.Errorf("vector has %d dimensions, index has %d: %w", got, want, domain.ErrDimensionMismatch),
	}
}

// CheckDocument returns an error if any record belongs to a document other than documentID.
func CheckDocument(records []domain.VectorRecord, documentID string) error {
	for _, r := range records {
		if r.DocumentID != documentID {
			return fmt.Errorf("record %s belongs to %s, not %s: %w", r.ID, r.DocumentID, documentID, domain.ErrInvalidInput)
		}
	}
	return nil
}

// SortHits orders hits by descending score, then ascending sequence, then ID.
func SortHits(hits []driven.VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Record.Sequence != b.Record.Sequence {
			return a.Record.Sequence < b.Record.Sequence
		}
		return a.Record.ID < b.Record.ID
	})
}

// TopK sorts hits and keeps at most k of them.
func TopK(hits []driven.VectorHit, k int) []driven.VectorHit {
	SortHits(hits)
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

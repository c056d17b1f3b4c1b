// Package hashing provides an offline embedding service based on feature
// hashing of word unigrams and bigrams.
//
// It needs no model download or network access, so it is the default
// provider and the one used in tests. Vectors are L2-normalised and
// deterministic: the same text always yields the same vector.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/textproc"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions matches all-MiniLM so indexes can switch providers without resizing.
const DefaultDimensions = 384

// ModelName is reported for the hashing provider.
const ModelName = "feature-hashing-v1"

// bigramWeight scales bigram features relative to unigrams.
const bigramWeight = 0.5

// EmbeddingService generates embeddings by hashing tokens into a fixed-size vector.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder of the given dimension.
// A non-positive dimension selects DefaultDimensions.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed generates a vector embedding for the given text.
// Text without any word token embeds to the zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[int]float64)
	tokens := textproc.Tokens(text)
	for i, tok := range tokens {
		s.add(counts, tok, 1)
		if i > 0 {
			s.add(counts, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	vec := make([]float32, s.dimensions)
	var norm float64
	for idx, v := range counts {
		if v == 0 {
			continue
		}
		// sublinear term frequency
		w := math.Copysign(1+math.Log(math.Abs(v)), v)
		vec[idx] = float32(w)
		norm += w * w
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (s *EmbeddingService) add(counts map[int]float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(s.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	counts[idx] += weight
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return ModelName
}

// Ping always succeeds; the service has no backend.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("hashing: %w", domain.ErrEmbeddingUnavailable)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

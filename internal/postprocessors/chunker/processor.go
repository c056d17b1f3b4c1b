// Package chunker provides a fixed-size text chunking processor.
package chunker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 500

// DefaultOverlapFraction is the default share of a chunk repeated in the next one.
const DefaultOverlapFraction = 0.2

// Processor splits document content into fixed-size overlapping windows.
// Sizes and offsets count characters (runes), so multi-byte text is never
// split inside a character. It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int

	// fraction is applied once all options are set unless overlap was given.
	fraction   float64
	overlapSet bool
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		p.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in characters. It takes
// precedence over WithOverlapFraction.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		p.overlap = overlap
		p.overlapSet = true
	}
}

// WithOverlapFraction sets the overlap as a fraction of the chunk size,
// rounded to the nearest character.
func WithOverlapFraction(fraction float64) Option {
	return func(p *Processor) {
		p.fraction = fraction
	}
}

// New creates a chunker with the given options. Values are taken as given;
// call Validate before use.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		fraction:  DefaultOverlapFraction,
	}

	for _, opt := range opts {
		opt(p)
	}

	if !p.overlapSet {
		p.overlap = int(math.Round(float64(p.chunkSize) * p.fraction))
	}
	return p
}

// Validate reports a parameter that would stop the window from advancing
// as a *domain.ConfigurationError.
func (p *Processor) Validate() error {
	switch {
	case p.chunkSize <= 0:
		return chunkerConfigError("chunk_size", "must be positive")
	case !p.overlapSet && (p.fraction < 0 || p.fraction >= 1):
		return chunkerConfigError("overlap_fraction", "must be in [0, 1)")
	case p.overlap < 0:
		return chunkerConfigError("overlap", "must not be negative")
	case p.overlap >= p.chunkSize:
		return chunkerConfigError("overlap", fmt.Sprintf("%d must be smaller than chunk_size %d", p.overlap, p.chunkSize))
	}
	return nil
}

func chunkerConfigError(field, msg string) error {
	return &domain.ConfigurationError{
		Field: "chunker." + field,
		Err:   fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg),
	}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the window length in characters.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the number of characters shared by consecutive chunks.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
//
// Consecutive chunks overlap by exactly the configured overlap and the last
// chunk ends at the document end. Blank documents fail with domain.ErrEmptyDocument.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, domain.ErrEmptyDocument
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(doc.Content)
	total := len(runes)
	step := p.chunkSize - p.overlap

	chunks := make([]domain.Chunk, 0, total/step+1)

	for start, seq := 0, 0; ; start, seq = start+step, seq+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + p.chunkSize
		if end > total {
			end = total
		}

		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(doc.ID, seq),
			DocumentID: doc.ID,
			Sequence:   seq,
			Span:       domain.Span{Start: start, End: end},
			Content:    string(runes[start:end]),
		})

		if end == total {
			break
		}
	}

	return chunks, nil
}

// ChunkID derives the stable identifier of a document's nth chunk.
func ChunkID(documentID string, sequence int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentID+":"+strconv.Itoa(sequence))).String()
}

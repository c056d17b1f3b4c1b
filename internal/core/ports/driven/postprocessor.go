package driven

import (
	"context"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// PostProcessor is one stage of the chunking pipeline. The first stage is
// handed nil chunks and creates them from doc; later stages receive the
// previous stage's output and return a replacement.
type PostProcessor interface {
	// Name is the key used to select the stage in configuration.
	Name() string
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline turns a document into the chunks that get indexed.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}

// Package postprocessors turns ingested documents into chunks through an
// ordered chain of processors built from configuration.
package postprocessors

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/logger"
)

var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

var (
	errNilDocument = errors.New("document is nil")
	errNoStages    = errors.New("pipeline has no processors")
)

// Pipeline runs processors in order. The first stage receives no chunks
// and creates them; later stages refine what they are handed.
type Pipeline struct {
	stages []driven.PostProcessor
}

// NewPipeline returns a pipeline running stages in the given order.
func NewPipeline(stages ...driven.PostProcessor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Add appends a stage.
func (p *Pipeline) Add(stage driven.PostProcessor) {
	p.stages = append(p.stages, stage)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Names lists stage names in execution order.
func (p *Pipeline) Names() []string {
	out := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.Name())
	}
	return out
}

// Process chunks doc. Output that is empty, or that contains an empty
// chunk, fails with domain.ErrEmptyDocument.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	switch {
	case doc == nil:
		return nil, errNilDocument
	case len(p.stages) == 0:
		return nil, errNoStages
	}

	var chunks []domain.Chunk
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := stage.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", stage.Name(), err)
		}
		logger.Debug("%s: %s produced %d chunk(s)", doc.ID, stage.Name(), len(out))
		chunks = out
	}

	if len(chunks) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	for _, c := range chunks {
		if c.Content == "" {
			return nil, fmt.Errorf("chunk %d: %w", c.Sequence, domain.ErrEmptyDocument)
		}
	}
	return chunks, nil
}

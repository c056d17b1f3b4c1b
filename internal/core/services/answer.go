package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// AnswerService answers questions from the procedures.
type AnswerService struct {
	retrieval driving.RetrievalService
	generator driven.GenerationService
}

// NewAnswerService creates an answer service. The generator may be nil;
// questions with context then fail with domain.ErrLLMUnavailable.
func NewAnswerService(retrieval driving.RetrievalService, generator driven.GenerationService) *AnswerService {
	return &AnswerService{retrieval: retrieval, generator: generator}
}

// Ask retrieves context and asks the model to answer from it. Without any
// context it answers domain.InsufficientInformation and skips the model.
func (s *AnswerService) Ask(ctx context.Context, query string, opts domain.RetrievalOptions) (*domain.Answer, error) {
	retrieval, assembled := s.retrieval.Context(ctx, query, opts)

	answer := &domain.Answer{
		Query:   query,
		Failure: retrieval.Failure,
	}

	if assembled.IsEmpty() {
		if retrieval.Failure != nil {
			logger.Info("ask: no context (%s)", retrieval.Failure.Kind)
		}
		answer.Text = domain.InsufficientInformation
		return answer, nil
	}

	if s.generator == nil {
		return nil, fmt.Errorf("answer: %w", domain.ErrLLMUnavailable)
	}

	text, err := s.generator.Generate(ctx, domain.GenerationRequest{
		Task:    domain.TaskAnswer,
		Query:   query,
		Context: assembled,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}

	answer.Text = strings.TrimSpace(text)
	answer.Sufficient = !strings.Contains(answer.Text, domain.InsufficientInformation)
	answer.Citations = assembled.Citations
	return answer, nil
}

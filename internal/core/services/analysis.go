package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Ensure AnalysisService implements the interface.
var _ driving.AnalysisService = (*AnalysisService)(nil)

// uncategorised is the category of analyses that name none.
const uncategorised = "uncategorised"

// AnalysisService assesses incidents against the procedures.
type AnalysisService struct {
	retrieval driving.RetrievalService
	generator driven.GenerationService
	store     driven.DeviationStore
	now       func() time.Time
}

// NewAnalysisService creates an analysis service. The store may be nil,
// in which case analyses are returned but not recorded.
func NewAnalysisService(
	retrieval driving.RetrievalService,
	generator driven.GenerationService,
	store driven.DeviationStore,
) *AnalysisService {
	return &AnalysisService{
		retrieval: retrieval,
		generator: generator,
		store:     store,
		now:       time.Now,
	}
}

// Analyze retrieves procedure context for the incident, asks the model for a
// JSON deviation analysis and records the result.
func (s *AnalysisService) Analyze(ctx context.Context, incident string) (*domain.DeviationRecord, error) {
	incident = strings.TrimSpace(incident)
	if incident == "" {
		return nil, fmt.Errorf("analyze: empty incident: %w", domain.ErrInvalidInput)
	}
	if s.generator == nil {
		return nil, fmt.Errorf("analyze: %w", domain.ErrLLMUnavailable)
	}

	retrieval, assembled := s.retrieval.Context(ctx, incident, domain.RetrievalOptions{})
	if retrieval.Failure != nil {
		logger.Warn("analyze: retrieval degraded (%s), analysing without procedure context", retrieval.Failure.Kind)
	}

	raw, err := s.generator.Generate(ctx, domain.GenerationRequest{
		Task:    domain.TaskDeviationAnalysis,
		Query:   incident,
		Context: assembled,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	analysis, err := ParseDeviationAnalysis(raw)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	return s.save(ctx, "analyze", incident, analysis, assembled.Citations)
}

// Record stores a deviation with the caller's severity and category and the
// standard analysis for them. It works without a language model.
func (s *AnalysisService) Record(ctx context.Context, entry domain.DeviationEntry) (*domain.DeviationRecord, error) {
	entry, err := entry.Normalize()
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	retrieval, assembled := s.retrieval.Context(ctx, entry.Incident, domain.RetrievalOptions{})
	if retrieval.Failure != nil {
		logger.Warn("record: retrieval degraded (%s), recording without procedure references", retrieval.Failure.Kind)
	}

	return s.save(ctx, "record", entry.Incident, domain.StructuredAnalysis(entry), assembled.Citations)
}

func (s *AnalysisService) save(
	ctx context.Context,
	op, incident string,
	analysis domain.DeviationAnalysis,
	citations []domain.Citation,
) (*domain.DeviationRecord, error) {
	rec := &domain.DeviationRecord{
		ID:          uuid.New().String(),
		Description: incident,
		Severity:    analysis.SeverityLevel,
		Category:    analysis.DeviationCategory,
		OccurredAt:  s.now().UTC(),
		Analysis:    analysis,
		Citations:   citations,
	}

	if s.store != nil {
		if err := s.store.SaveDeviation(ctx, rec); err != nil {
			return nil, fmt.Errorf("%s: save deviation: %w", op, err)
		}
	}
	return rec, nil
}

// ParseDeviationAnalysis decodes the JSON object in a model response.
// Text around the outermost braces is ignored. Severity and category are
// lower-cased; an unrecognised severity becomes domain.SeverityUnknown.
func ParseDeviationAnalysis(raw string) (domain.DeviationAnalysis, error) {
	var analysis domain.DeviationAnalysis

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return analysis, fmt.Errorf("no JSON object in response: %w", domain.ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return analysis, fmt.Errorf("decode analysis: %v: %w", err, domain.ErrMalformedResponse)
	}

	analysis.SeverityLevel = domain.Severity(strings.ToLower(strings.TrimSpace(string(analysis.SeverityLevel))))
	if !analysis.SeverityLevel.IsValid() {
		analysis.SeverityLevel = domain.SeverityUnknown
	}
	analysis.DeviationCategory = strings.ToLower(strings.TrimSpace(analysis.DeviationCategory))
	if analysis.DeviationCategory == "" {
		analysis.DeviationCategory = uncategorised
	}

	return analysis, nil
}

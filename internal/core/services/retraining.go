package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Ensure RetrainingService implements the interface.
var _ driving.RetrainingService = (*RetrainingService)(nil)

const (
	// DefaultRecallK is how many deviations Recall returns when k is not set.
	DefaultRecallK = 3

	// maxGroundingDeviations bounds the deviations described to the model.
	maxGroundingDeviations = 10

	// retrainingQuery recalls deviations that point at training gaps.
	retrainingQuery = "training retraining competency"
)

// RetrainingService recalls recorded deviations by meaning and turns them
// into retraining suggestions.
type RetrainingService struct {
	store     driven.DeviationStore
	embedder  driven.EmbeddingService
	retrieval driving.RetrievalService
	generator driven.GenerationService
	minScore  float64
	timeout   time.Duration
	now       func() time.Time
}

// NewRetrainingService creates a retraining service. The generator may be
// nil, in which case Suggest reports domain.ErrLLMUnavailable.
func NewRetrainingService(
	store driven.DeviationStore,
	embedder driven.EmbeddingService,
	retrieval driving.RetrievalService,
	generator driven.GenerationService,
	settings domain.Settings,
) *RetrainingService {
	return &RetrainingService{
		store:     store,
		embedder:  embedder,
		retrieval: retrieval,
		generator: generator,
		minScore:  settings.Retrieval.MinScore,
		timeout:   settings.Embedding.Timeout,
		now:       time.Now,
	}
}

// Recall embeds query and the descriptions of the deviations recorded within
// window, and returns the k closest at or above the minimum score.
func (s *RetrainingService) Recall(ctx context.Context, query string, window time.Duration, k int) ([]domain.ScoredDeviation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("recall: empty query: %w", domain.ErrInvalidInput)
	}

	_, records, err := s.records(ctx, "recall", window)
	if err != nil {
		return nil, err
	}
	return s.recall(ctx, query, records, k)
}

func (s *RetrainingService) recall(ctx context.Context, query string, records []domain.DeviationRecord, k int) ([]domain.ScoredDeviation, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("recall: %w", domain.ErrEmbeddingUnavailable)
	}
	if k <= 0 {
		k = DefaultRecallK
	}
	k = min(k, domain.MaxRetrievalK)

	texts := make([]string, 0, len(records)+1)
	texts = append(texts, query)
	for _, rec := range records {
		texts = append(texts, rec.Description)
	}

	ectx, cancel := withTimeout(ctx, s.timeout)
	vecs, err := s.embedder.EmbedBatch(ectx, texts)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("recall: got %d vectors for %d texts: %w", len(vecs), len(texts), domain.ErrEmbeddingFailed)
	}

	var scored []domain.ScoredDeviation
	for i, rec := range records {
		score := cosine(vecs[0], vecs[i+1])
		if score < s.minScore {
			continue
		}
		scored = append(scored, domain.ScoredDeviation{Record: rec, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.OccurredAt.After(scored[j].Record.OccurredAt)
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Suggest grounds the model on the deviations that asked for retraining,
// those recalled as training related, and the procedures covering them.
func (s *RetrainingService) Suggest(ctx context.Context, window time.Duration) (*domain.RetrainingPlan, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("retraining: %w", domain.ErrLLMUnavailable)
	}

	since, records, err := s.records(ctx, "retraining", window)
	if err != nil {
		return nil, err
	}

	grounding := make([]domain.DeviationRecord, 0, maxGroundingDeviations)
	seen := make(map[string]bool)
	add := func(rec domain.DeviationRecord) {
		if len(grounding) < maxGroundingDeviations && !seen[rec.ID] {
			seen[rec.ID] = true
			grounding = append(grounding, rec)
		}
	}
	for _, rec := range records {
		if rec.Analysis.TrainingImplications.NeedsRetraining {
			add(rec)
		}
	}
	recalled, err := s.recall(ctx, retrainingQuery, records, DefaultRecallK)
	if err != nil {
		logger.Warn("retraining: recalling deviations failed: %v", err)
	}
	for _, sd := range recalled {
		add(sd.Record)
	}

	var assembled domain.AssembledContext
	if s.retrieval != nil {
		var retrieval domain.Retrieval
		retrieval, assembled = s.retrieval.Context(ctx, procedureQuery(grounding), domain.RetrievalOptions{})
		if retrieval.Failure != nil {
			logger.Warn("retraining: retrieval degraded (%s)", retrieval.Failure.Kind)
		}
	}

	text, err := s.generator.Generate(ctx, domain.GenerationRequest{
		Task:    domain.TaskRetraining,
		Query:   describeDeviations(grounding),
		Context: assembled,
	})
	if err != nil {
		return nil, fmt.Errorf("retraining: %w", err)
	}

	now := s.now().UTC()
	plan := &domain.RetrainingPlan{
		ID:            "TRAIN-" + now.Format("20060102-150405"),
		GeneratedAt:   now,
		Since:         since,
		DeviationIDs:  make([]string, len(grounding)),
		AffectedRoles: affectedRoles(grounding),
		Suggestions:   strings.TrimSpace(text),
		Citations:     assembled.Citations,
	}
	for i, rec := range grounding {
		plan.DeviationIDs[i] = rec.ID
	}
	return plan, nil
}

func (s *RetrainingService) records(ctx context.Context, op string, window time.Duration) (time.Time, []domain.DeviationRecord, error) {
	if window <= 0 {
		return time.Time{}, nil, fmt.Errorf("%s: window must be positive: %w", op, domain.ErrInvalidInput)
	}
	since := s.now().UTC().Add(-window)
	records, err := s.store.ListDeviations(ctx, since)
	if err != nil {
		return since, nil, fmt.Errorf("%s: %w", op, err)
	}
	return since, records, nil
}

// procedureQuery asks for the procedures behind the grounding deviations.
func procedureQuery(records []domain.DeviationRecord) string {
	var categories []string
	for _, rec := range records {
		if !slices.Contains(categories, rec.Category) {
			categories = append(categories, rec.Category)
		}
	}
	return strings.TrimSpace("training requirements " + strings.Join(categories, " "))
}

// describeDeviations renders the deviations as one line each for the prompt.
func describeDeviations(records []domain.DeviationRecord) string {
	if len(records) == 0 {
		return "No deviations were recorded in this period."
	}
	var b strings.Builder
	for _, rec := range records {
		t := rec.Analysis.TrainingImplications
		fmt.Fprintf(&b, "- [%s/%s] %s", rec.Severity, rec.Category, rec.Description)
		if len(t.AffectedRoles) > 0 {
			fmt.Fprintf(&b, " (roles: %s", strings.Join(t.AffectedRoles, ", "))
			if t.TrainingUrgency != "" {
				fmt.Fprintf(&b, "; urgency: %s", t.TrainingUrgency)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func affectedRoles(records []domain.DeviationRecord) []string {
	roles := []string{}
	for _, rec := range records {
		for _, role := range rec.Analysis.TrainingImplications.AffectedRoles {
			if !slices.Contains(roles, role) {
				roles = append(roles, role)
			}
		}
	}
	sort.Strings(roles)
	return roles
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

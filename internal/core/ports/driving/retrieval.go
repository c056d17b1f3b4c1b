package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// RetrievalService provides the read path to external actors.
type RetrievalService interface {
	// Retrieve returns the most relevant chunks for a query.
	// It never fails: degraded retrievals carry a Failure instead.
	Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) domain.Retrieval

	// Context retrieves and assembles the bounded context for a query.
	Context(ctx context.Context, query string, opts domain.RetrievalOptions) (domain.Retrieval, domain.AssembledContext)
}

// AnswerService answers questions grounded in the procedures.
type AnswerService interface {
	// Ask retrieves context and asks the model to answer from it.
	// Without relevant context it returns an insufficient-information answer
	// without calling the model.
	Ask(ctx context.Context, query string, opts domain.RetrievalOptions) (*domain.Answer, error)
}

// AnalysisService produces deviation analyses of incidents.
type AnalysisService interface {
	// Analyze assesses an incident against the procedures and records the result.
	Analyze(ctx context.Context, incident string) (*domain.DeviationRecord, error)

	// Record stores a deviation whose severity and category the caller
	// already knows. Procedure context is attached but no model is called.
	Record(ctx context.Context, entry domain.DeviationEntry) (*domain.DeviationRecord, error)
}

// TrendService reports on recorded deviations.
type TrendService interface {
	// Trends aggregates deviations recorded within the window ending now.
	Trends(ctx context.Context, window time.Duration) (*domain.TrendReport, error)

	// Alerts lists the critical and major deviations within the window,
	// critical first and then newest first, at most limit of them.
	Alerts(ctx context.Context, window time.Duration, limit int) ([]domain.DeviationAlert, error)
}

// RetrainingService turns recorded deviations into training guidance.
type RetrainingService interface {
	// Recall returns the recorded deviations within the window most similar
	// to query, best first.
	Recall(ctx context.Context, query string, window time.Duration, k int) ([]domain.ScoredDeviation, error)

	// Suggest asks the model for retraining programs grounded in the
	// deviations within the window and the relevant procedures.
	Suggest(ctx context.Context, window time.Duration) (*domain.RetrainingPlan, error)
}

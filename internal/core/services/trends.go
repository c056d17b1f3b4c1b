package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/textproc"
)

// Ensure TrendService implements the interface.
var _ driving.TrendService = (*TrendService)(nil)

// topCategories is how many categories a trend report ranks.
const topCategories = 5

// Alert defaults.
const (
	DefaultAlertLimit = 5
	alertSummaryChars = 200
)

// TrendService aggregates recorded deviations. It never writes.
type TrendService struct {
	store driven.DeviationStore
	now   func() time.Time
}

// NewTrendService creates a trend service.
func NewTrendService(store driven.DeviationStore) *TrendService {
	return &TrendService{store: store, now: time.Now}
}

// Trends reports on the deviations recorded within window before now.
func (s *TrendService) Trends(ctx context.Context, window time.Duration) (*domain.TrendReport, error) {
	since, until, records, err := s.list(ctx, "trends", window)
	if err != nil {
		return nil, err
	}

	report := &domain.TrendReport{
		Since:      since,
		Until:      until,
		BySeverity: make(map[domain.Severity]int),
		ByCategory: make(map[string]int),
		RootCauses: make(map[string]int),
	}

	for _, rec := range records {
		report.Total++
		report.BySeverity[rec.Severity]++
		report.ByCategory[rec.Category]++
		for _, cause := range rec.Analysis.RootCauseCategories {
			report.RootCauses[cause]++
		}
		if rec.Analysis.TrainingImplications.NeedsRetraining {
			report.NeedsRetraining++
		}
	}

	report.TopCategories = domain.RankCategories(report.ByCategory, topCategories)
	report.ComplianceScore = domain.ComplianceScore(report.BySeverity)
	return report, nil
}

// Alerts lists the deviations within window that need immediate attention.
// A non-positive limit means DefaultAlertLimit.
func (s *TrendService) Alerts(ctx context.Context, window time.Duration, limit int) ([]domain.DeviationAlert, error) {
	_, _, records, err := s.list(ctx, "alerts", window)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultAlertLimit
	}

	flagged := make([]domain.DeviationRecord, 0, len(records))
	for _, rec := range records {
		if rec.Severity.NeedsAttention() {
			flagged = append(flagged, rec)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		a, b := flagged[i], flagged[j]
		if a.Severity != b.Severity {
			return a.Severity == domain.SeverityCritical
		}
		return a.OccurredAt.After(b.OccurredAt)
	})
	if len(flagged) > limit {
		flagged = flagged[:limit]
	}

	alerts := make([]domain.DeviationAlert, len(flagged))
	for i, rec := range flagged {
		alerts[i] = domain.DeviationAlert{
			DeviationID:      rec.ID,
			Severity:         rec.Severity,
			Category:         rec.Category,
			Summary:          textproc.TruncateAtSentence(rec.Description, alertSummaryChars),
			ImmediateActions: rec.Analysis.ImmediateActions,
			OccurredAt:       rec.OccurredAt,
		}
	}
	return alerts, nil
}

func (s *TrendService) list(ctx context.Context, op string, window time.Duration) (since, until time.Time, records []domain.DeviationRecord, err error) {
	if window <= 0 {
		return since, until, nil, fmt.Errorf("%s: window must be positive: %w", op, domain.ErrInvalidInput)
	}

	until = s.now().UTC()
	since = until.Add(-window)

	records, err = s.store.ListDeviations(ctx, since)
	if err != nil {
		return since, until, nil, fmt.Errorf("%s: %w", op, err)
	}
	return since, until, records, nil
}

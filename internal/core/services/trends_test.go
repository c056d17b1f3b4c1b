package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sopctx/internal/core/domain"
)

func deviation(id string, sev domain.Severity, category string, at time.Time, retrain bool, causes ...string) *domain.DeviationRecord {
	return &domain.DeviationRecord{
		ID:         id,
		Severity:   sev,
		Category:   category,
		OccurredAt: at,
		Analysis: domain.DeviationAnalysis{
			SeverityLevel:        sev,
			DeviationCategory:    category,
			RootCauseCategories:  causes,
			TrainingImplications: domain.TrainingImplications{NeedsRetraining: retrain},
		},
	}
}

func TestTrendService_Trends(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	store := memory.NewDeviationStore()
	for _, rec := range []*domain.DeviationRecord{
		deviation("1", domain.SeverityCritical, "gowning", now.Add(-24*time.Hour), true, "training"),
		deviation("2", domain.SeverityMajor, "gowning", now.Add(-48*time.Hour), false, "training", "equipment"),
		deviation("3", domain.SeverityMinor, "labelling", now.Add(-72*time.Hour), true),
		deviation("old", domain.SeverityCritical, "cleaning", now.Add(-60*24*time.Hour), true),
	} {
		require.NoError(t, store.SaveDeviation(ctx, rec))
	}

	svc := NewTrendService(store)
	svc.now = func() time.Time { return now }

	report, err := svc.Trends(ctx, 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, now, report.Until)
	assert.Equal(t, now.Add(-30*24*time.Hour), report.Since)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, map[domain.Severity]int{
		domain.SeverityCritical: 1, domain.SeverityMajor: 1, domain.SeverityMinor: 1,
	}, report.BySeverity)
	assert.Equal(t, map[string]int{"gowning": 2, "labelling": 1}, report.ByCategory)
	assert.Equal(t, []domain.CategoryCount{{Category: "gowning", Count: 2}, {Category: "labelling", Count: 1}}, report.TopCategories)
	assert.Equal(t, map[string]int{"training": 2, "equipment": 1}, report.RootCauses)
	assert.Equal(t, 2, report.NeedsRetraining)
	assert.InDelta(t, 83.0, report.ComplianceScore, 1e-9)
}

func TestTrendService_EmptyWindow(t *testing.T) {
	svc := NewTrendService(memory.NewDeviationStore())

	report, err := svc.Trends(context.Background(), time.Hour)

	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, report.TopCategories)
	assert.InDelta(t, 100.0, report.ComplianceScore, 1e-9)
}

func TestTrendService_InvalidWindow(t *testing.T) {
	svc := NewTrendService(memory.NewDeviationStore())

	_, err := svc.Trends(context.Background(), 0)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTrendService_Alerts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	store := memory.NewDeviationStore()
	long := deviation("long", domain.SeverityMajor, "cleaning", now.Add(-2*time.Hour), false)
	long.Description = "Cleaning log unsigned. " + strings.Repeat("word ", 60)
	long.Analysis.ImmediateActions = []string{"reclean room"}
	for _, rec := range []*domain.DeviationRecord{
		deviation("major-old", domain.SeverityMajor, "gowning", now.Add(-48*time.Hour), false),
		deviation("minor", domain.SeverityMinor, "labelling", now.Add(-time.Hour), false),
		deviation("critical", domain.SeverityCritical, "sterility", now.Add(-72*time.Hour), true),
		long,
		deviation("stale", domain.SeverityCritical, "sterility", now.Add(-30*24*time.Hour), true),
	} {
		require.NoError(t, store.SaveDeviation(ctx, rec))
	}

	svc := NewTrendService(store)
	svc.now = func() time.Time { return now }

	alerts, err := svc.Alerts(ctx, 7*24*time.Hour, 0)

	require.NoError(t, err)
	ids := make([]string, len(alerts))
	for i, a := range alerts {
		ids[i] = a.DeviationID
	}
	assert.Equal(t, []string{"critical", "long", "major-old"}, ids)
	assert.Equal(t, "Cleaning log unsigned.", alerts[1].Summary)
	assert.Equal(t, []string{"reclean room"}, alerts[1].ImmediateActions)

	limited, err := svc.Alerts(ctx, 7*24*time.Hour, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, domain.SeverityCritical, limited[0].Severity)

	_, err = svc.Alerts(ctx, 0, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

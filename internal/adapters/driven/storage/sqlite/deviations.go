package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// deviationStore implements driven.DeviationStore.
type deviationStore struct {
	store *Store
}

var _ driven.DeviationStore = (*deviationStore)(nil)

// SaveDeviation stores or updates a deviation record.
func (s *deviationStore) SaveDeviation(ctx context.Context, rec *domain.DeviationRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("saving deviation: %w", domain.ErrInvalidInput)
	}

	analysisJSON, err := json.Marshal(rec.Analysis)
	if err != nil {
		return fmt.Errorf("marshalling analysis: %w", err)
	}
	citationsJSON, err := json.Marshal(rec.Citations)
	if err != nil {
		return fmt.Errorf("marshalling citations: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO deviations (id, description, severity, category, occurred_at, analysis, citations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			severity = excluded.severity,
			category = excluded.category,
			occurred_at = excluded.occurred_at,
			analysis = excluded.analysis,
			citations = excluded.citations
	`, rec.ID, rec.Description, string(rec.Severity), rec.Category,
		toUnixNano(rec.OccurredAt), string(analysisJSON), string(citationsJSON))
	if err != nil {
		return fmt.Errorf("saving deviation: %w", err)
	}
	return nil
}

// ListDeviations returns records that occurred at or after since, newest first.
func (s *deviationStore) ListDeviations(ctx context.Context, since time.Time) ([]domain.DeviationRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, description, severity, category, occurred_at, analysis, citations
		FROM deviations WHERE occurred_at >= ?
		ORDER BY occurred_at DESC, id`, toUnixNano(since))
	return collect(rows, err, "deviations", scanDeviation)
}

func scanDeviation(row scanner) (*domain.DeviationRecord, error) {
	var (
		rec                 domain.DeviationRecord
		severity            string
		analysis, citations string
		occurredAt          int64
	)
	if err := row.Scan(&rec.ID, &rec.Description, &severity, &rec.Category, &occurredAt, &analysis, &citations); err != nil {
		return nil, fmt.Errorf("scan deviation: %w", err)
	}
	rec.Severity = domain.Severity(severity)
	rec.OccurredAt = fromUnixNano(occurredAt)
	if err := json.Unmarshal([]byte(analysis), &rec.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(citations), &rec.Citations); err != nil {
		return nil, fmt.Errorf("decode citations of %s: %w", rec.ID, err)
	}
	return &rec, nil
}

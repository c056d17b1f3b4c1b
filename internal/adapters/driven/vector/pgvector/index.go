// Package pgvector provides a vector index backed by PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/custodia-labs/sopctx/internal/adapters/driven/vector"
	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Verify interface compliance.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultTable is the table holding vector records.
const DefaultTable = "sop_vectors"

// Index stores vector records in PostgreSQL and searches them with pgvector operators.
type Index struct {
	db     *sql.DB
	table  string
	dims   int
	metric domain.SimilarityMetric
}

// Open connects to PostgreSQL, creates the schema if needed and checks that an
// existing table matches the configured dimension.
func Open(ctx context.Context, dsn string, dims int, metric domain.SimilarityMetric) (*Index, error) {
	if dsn == "" {
		return nil, &domain.ConfigurationError{Field: "index.dsn", Err: domain.ErrInvalidInput}
	}
	if dims <= 0 {
		return nil, &domain.ConfigurationError{Field: "embedding.dimensions", Err: domain.ErrInvalidInput}
	}
	if !metric.IsValid() {
		return nil, &domain.ConfigurationError{Field: "index.metric", Err: domain.ErrUnsupportedType}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, &domain.IndexError{Op: "open", Err: fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &domain.IndexError{Op: "open", Err: fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)}
	}

	idx := &Index{db: db, table: DefaultTable, dims: dims, metric: metric}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("pgvector: opened %s (%d dims, %s)", idx.table, dims, metric)
	return idx, nil
}

// Reset drops the vector table so the next Open may use a new dimension.
func Reset(ctx context.Context, dsn string) error {
	if dsn == "" {
		return &domain.ConfigurationError{Field: "index.dsn", Err: domain.ErrInvalidInput}
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return &domain.IndexError{Op: "reset", Err: fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)}
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return &domain.IndexError{Op: "reset", Err: fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, DefaultTable)); err != nil {
		return &domain.IndexError{Op: "reset", Err: err}
	}
	logger.Debug("pgvector: dropped %s", DefaultTable)
	return nil
}

func (x *Index) opClass() string {
	if x.metric == domain.MetricDot {
		return "vector_ip_ops"
	}
	return "vector_cosine_ops"
}

func (x *Index) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			span_start INTEGER NOT NULL,
			span_end INTEGER NOT NULL,
			text TEXT NOT NULL,
			source TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, x.table, x.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s (document_id)`, x.table, x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding %s)`, x.table, x.table, x.opClass()),
	}

	for _, m := range migrations {
		if _, err := x.db.ExecContext(ctx, m); err != nil {
			return &domain.IndexError{Op: "migrate", Err: err}
		}
	}

	// vector(n) stores its dimension as the column type modifier
	var existing int
	err := x.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'
	`, x.table).Scan(&existing)
	if err != nil {
		return &domain.IndexError{Op: "migrate", Err: err}
	}
	if existing != x.dims {
		return vector.MismatchError(x.dims, existing)
	}
	return nil
}

// Upsert inserts or replaces records by ID in a single transaction.
func (x *Index) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if err := vector.CheckDimensions(records, x.dims); err != nil {
		return err
	}
	return x.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		return x.insert(ctx, tx, records)
	})
}

// DeleteDocument removes all records of a document.
func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := x.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, x.table), documentID)
	if err != nil {
		return &domain.IndexError{Op: "delete", Err: err}
	}
	return nil
}

// ReplaceDocument deletes and re-inserts a document's records in one transaction,
// so concurrent searches see either the old or the new version.
func (x *Index) ReplaceDocument(ctx context.Context, documentID string, records []domain.VectorRecord) error {
	if err := vector.CheckDimensions(records, x.dims); err != nil {
		return err
	}
	if err := vector.CheckDocument(records, documentID); err != nil {
		return &domain.IndexError{Op: "replace", Err: err}
	}
	return x.inTx(ctx, "replace", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, x.table), documentID); err != nil {
			return err
		}
		return x.insert(ctx, tx, records)
	})
}

func (x *Index) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.IndexError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return &domain.IndexError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.IndexError{Op: op, Err: err}
	}
	return nil
}

func (x *Index) insert(ctx context.Context, tx *sql.Tx, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, document_id, sequence, span_start, span_end, text, source, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			sequence = EXCLUDED.sequence,
			span_start = EXCLUDED.span_start,
			span_end = EXCLUDED.span_end,
			text = EXCLUDED.text,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding
	`, x.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.DocumentID, r.Sequence, r.Span.Start, r.Span.End, r.Text, r.Source,
			formatEmbedding(vector.Prepare(r.Vector, x.metric)),
		)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return nil
}

// scoreExpr returns the SQL similarity for the metric. Both are higher-is-better.
func (x *Index) scoreExpr() string {
	if x.metric == domain.MetricDot {
		return "(embedding <#> $1) * -1"
	}
	return "1 - (embedding <=> $1)"
}

// Search returns at most k hits ordered by descending score, then sequence, then ID.
func (x *Index) Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]driven.VectorHit, error) {
	if len(query) != x.dims {
		return nil, vector.MismatchError(len(query), x.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	args := []any{formatEmbedding(vector.Prepare(query, x.metric)), k}
	where := ""
	if !filter.IsEmpty() {
		where = "WHERE document_id = ANY($3)"
		args = append(args, filter.DocumentIDs)
	}

	rows, err := x.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, sequence, span_start, span_end, text, source, embedding::text, %s AS score
		FROM %s
		%s
		ORDER BY score DESC, sequence ASC, id ASC
		LIMIT $2
	`, x.scoreExpr(), x.table, where), args...)
	if err != nil {
		return nil, &domain.IndexError{Op: "search", Err: err}
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var r domain.VectorRecord
		var embedding string
		var score float64
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Sequence, &r.Span.Start, &r.Span.End, &r.Text, &r.Source, &embedding, &score); err != nil {
			return nil, &domain.IndexError{Op: "search", Err: err}
		}
		r.Vector = parseEmbedding(embedding)
		hits = append(hits, driven.VectorHit{Record: r, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.IndexError{Op: "search", Err: err}
	}

	// float rounding in the database can reorder near-ties; apply the canonical order
	vector.SortHits(hits)
	return hits, nil
}

// Count returns the number of stored records.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, x.table)).Scan(&n); err != nil {
		return 0, &domain.IndexError{Op: "count", Err: err}
	}
	return n, nil
}

// Dimensions returns the fixed vector length of the index.
func (x *Index) Dimensions() int {
	return x.dims
}

// Metric returns the similarity metric.
func (x *Index) Metric() domain.SimilarityMetric {
	return x.metric
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// formatEmbedding converts a vector to pgvector text format: "[0.1,0.2,0.3]".
func formatEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding converts pgvector text format back to a vector.
func parseEmbedding(s string) []float32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		result[i] = float32(f)
	}
	return result
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/custodia-labs/sopctx/internal/adapters/driven/vector"
	"github.com/custodia-labs/sopctx/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

const (
	metaDimensions = "dimensions"
	metaMetric     = "metric"
)

// VectorIndex persists vector records in SQLite and serves searches from
// an in-memory mirror loaded at open.
type VectorIndex struct {
	store *Store
	mem   *memory.Index
	mu    sync.Mutex
}

var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex opens the persistent vector index. The first open records the
// dimension and metric; a later open with different values is rejected
// rather than mixing incompatible vectors.
func (s *Store) VectorIndex(ctx context.Context, dims int, metric domain.SimilarityMetric) (*VectorIndex, error) {
	mem, err := memory.New(dims, metric)
	if err != nil {
		return nil, err
	}

	if err := s.checkIndexMeta(ctx, dims, metric); err != nil {
		return nil, err
	}

	x := &VectorIndex{store: s, mem: mem}
	if err := x.load(ctx); err != nil {
		return nil, err
	}
	return x, nil
}

// ResetVectorIndex deletes every vector record and the recorded dimension
// and metric, so the next VectorIndex call may use new ones. Documents and
// chunks are kept for reindexing.
func (s *Store) ResetVectorIndex(ctx context.Context) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{"DELETE FROM vectors", "DELETE FROM index_meta"} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.IndexError{Op: "reset", Err: err}
	}
	return nil
}

func (s *Store) checkIndexMeta(ctx context.Context, dims int, metric domain.SimilarityMetric) error {
	stored, err := s.indexMeta(ctx, metaDimensions)
	if err != nil {
		return err
	}
	if stored != "" {
		n, err := strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("parsing stored dimensions %q: %w", stored, err)
		}
		if n != dims {
			return vector.MismatchError(dims, n)
		}
	}

	storedMetric, err := s.indexMeta(ctx, metaMetric)
	if err != nil {
		return err
	}
	if storedMetric != "" && storedMetric != metric.String() {
		return &domain.ConfigurationError{
			Field: "index.metric",
			Err:   fmt.Errorf("%w: index was built with %s, configured %s", domain.ErrInvalidInput, storedMetric, metric),
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?), (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, metaDimensions, strconv.Itoa(dims), metaMetric, metric.String())
	if err != nil {
		return fmt.Errorf("recording index metadata: %w", err)
	}
	return nil
}

func (s *Store) indexMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading index metadata: %w", err)
	}
	return value, nil
}

func (x *VectorIndex) load(ctx context.Context) error {
	rows, err := x.store.db.QueryContext(ctx, `
		SELECT id, document_id, sequence, span_start, span_end, text, source, embedding
		FROM vectors`)
	records, err := collect(rows, err, "vectors", scanVectorRecord)
	if err != nil {
		return &domain.IndexError{Op: "load", Err: err}
	}
	if len(records) == 0 {
		return nil
	}
	return x.mem.Upsert(ctx, records)
}

func scanVectorRecord(row scanner) (*domain.VectorRecord, error) {
	var (
		r    domain.VectorRecord
		blob []byte
	)
	if err := row.Scan(&r.ID, &r.DocumentID, &r.Sequence, &r.Span.Start, &r.Span.End, &r.Text, &r.Source, &blob); err != nil {
		return nil, err
	}
	r.Vector = bytesToFloat32Slice(blob)
	return &r, nil
}

// Upsert inserts or replaces records by ID.
func (x *VectorIndex) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if err := vector.CheckDimensions(records, x.mem.Dimensions()); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		return insertVectors(ctx, tx, records)
	})
	if err != nil {
		return err
	}
	return x.mem.Upsert(ctx, records)
}

// DeleteDocument removes all records of a document.
func (x *VectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.inTx(ctx, "delete", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE document_id = ?", documentID)
		return err
	})
	if err != nil {
		return err
	}
	return x.mem.DeleteDocument(ctx, documentID)
}

// ReplaceDocument atomically swaps all records of a document.
func (x *VectorIndex) ReplaceDocument(ctx context.Context, documentID string, records []domain.VectorRecord) error {
	if err := vector.CheckDocument(records, documentID); err != nil {
		return &domain.IndexError{Op: "replace", Err: err}
	}
	if err := vector.CheckDimensions(records, x.mem.Dimensions()); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.inTx(ctx, "replace", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE document_id = ?", documentID); err != nil {
			return err
		}
		return insertVectors(ctx, tx, records)
	})
	if err != nil {
		return err
	}
	return x.mem.ReplaceDocument(ctx, documentID, records)
}

func insertVectors(ctx context.Context, tx *sql.Tx, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (id, document_id, sequence, span_start, span_end, text, source, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			sequence = excluded.sequence,
			span_start = excluded.span_start,
			span_end = excluded.span_end,
			text = excluded.text,
			source = excluded.source,
			embedding = excluded.embedding
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocumentID, r.Sequence, r.Span.Start, r.Span.End,
			r.Text, r.Source, float32SliceToBytes(r.Vector)); err != nil {
			return err
		}
	}
	return nil
}

func (x *VectorIndex) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if err := x.store.inTx(ctx, fn); err != nil {
		return &domain.IndexError{Op: op, Err: err}
	}
	return nil
}

// Search delegates to the in-memory mirror.
func (x *VectorIndex) Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]driven.VectorHit, error) {
	return x.mem.Search(ctx, query, k, filter)
}

// Count returns the number of stored records.
func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	return x.mem.Count(ctx)
}

// Dimensions returns the fixed vector length of the index.
func (x *VectorIndex) Dimensions() int {
	return x.mem.Dimensions()
}

// Metric returns the similarity metric.
func (x *VectorIndex) Metric() domain.SimilarityMetric {
	return x.mem.Metric()
}

// Close releases the in-memory mirror. The underlying Store stays open.
func (x *VectorIndex) Close() error {
	return x.mem.Close()
}

// Package memory provides an in-memory flat vector index.
//
// Searches run against an immutable snapshot; writers build a new snapshot
// and swap it in, so a search sees either all or none of a document's
// records and never blocks on a write in progress.
package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sopctx/internal/adapters/driven/vector"
	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.VectorIndex = (*Index)(nil)

// snapshot is never modified after publication.
type snapshot struct {
	byDoc map[string][]domain.VectorRecord
	owner map[string]string // record ID -> document ID
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		byDoc: make(map[string][]domain.VectorRecord, len(s.byDoc)),
		owner: make(map[string]string, len(s.owner)),
	}
	for doc, recs := range s.byDoc {
		next.byDoc[doc] = recs
	}
	for id, doc := range s.owner {
		next.owner[id] = doc
	}
	return next
}

// removeIDs drops the given record IDs, copying only the documents touched.
func (s *snapshot) removeIDs(ids map[string]struct{}) {
	touched := make(map[string]struct{})
	for id := range ids {
		if doc, ok := s.owner[id]; ok {
			touched[doc] = struct{}{}
			delete(s.owner, id)
		}
	}
	for doc := range touched {
		old := s.byDoc[doc]
		kept := make([]domain.VectorRecord, 0, len(old))
		for _, r := range old {
			if _, drop := ids[r.ID]; !drop {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.byDoc, doc)
		} else {
			s.byDoc[doc] = kept
		}
	}
}

// add appends records, allocating fresh slices so published snapshots keep their view.
func (s *snapshot) add(records []domain.VectorRecord) {
	grouped := make(map[string][]domain.VectorRecord)
	for _, r := range records {
		grouped[r.DocumentID] = append(grouped[r.DocumentID], r)
		s.owner[r.ID] = r.DocumentID
	}
	for doc, recs := range grouped {
		old := s.byDoc[doc]
		merged := make([]domain.VectorRecord, 0, len(old)+len(recs))
		merged = append(merged, old...)
		s.byDoc[doc] = append(merged, recs...)
	}
}

// Index is an in-memory flat vector index with exact search.
type Index struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	current *snapshot
	dims    int
	metric  domain.SimilarityMetric
	closed  bool
}

// New creates an empty index for vectors of the given dimension.
func New(dims int, metric domain.SimilarityMetric) (*Index, error) {
	if dims <= 0 {
		return nil, &domain.ConfigurationError{Field: "embedding.dimensions", Err: domain.ErrInvalidInput}
	}
	if !metric.IsValid() {
		return nil, &domain.ConfigurationError{Field: "index.metric", Err: domain.ErrUnsupportedType}
	}
	return &Index{
		current: &snapshot{
			byDoc: make(map[string][]domain.VectorRecord),
			owner: make(map[string]string),
		},
		dims:   dims,
		metric: metric,
	}, nil
}

func (x *Index) load() (*snapshot, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, domain.ErrIndexClosed
	}
	return x.current, nil
}

// write builds the next snapshot from the current one and publishes it.
func (x *Index) write(op string, records []domain.VectorRecord, mutate func(next *snapshot, prepared []domain.VectorRecord)) error {
	if err := vector.CheckDimensions(records, x.dims); err != nil {
		return err
	}

	prepared := make([]domain.VectorRecord, len(records))
	for i, r := range records {
		r.Vector = vector.Prepare(r.Vector, x.metric)
		prepared[i] = r
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	cur, err := x.load()
	if err != nil {
		return &domain.IndexError{Op: op, Err: err}
	}

	next := cur.clone()
	mutate(next, prepared)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return &domain.IndexError{Op: op, Err: domain.ErrIndexClosed}
	}
	x.current = next
	return nil
}

// Upsert inserts or replaces records by ID.
func (x *Index) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return x.write("upsert", records, func(next *snapshot, prepared []domain.VectorRecord) {
		ids := make(map[string]struct{}, len(prepared))
		for _, r := range prepared {
			ids[r.ID] = struct{}{}
		}
		next.removeIDs(ids)
		next.add(dedupe(prepared))
	})
}

// DeleteDocument removes all records of a document.
func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return x.write("delete", nil, func(next *snapshot, _ []domain.VectorRecord) {
		removeDocument(next, documentID)
	})
}

// ReplaceDocument atomically swaps all records of a document.
func (x *Index) ReplaceDocument(ctx context.Context, documentID string, records []domain.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := vector.CheckDocument(records, documentID); err != nil {
		return &domain.IndexError{Op: "replace", Err: err}
	}
	return x.write("replace", records, func(next *snapshot, prepared []domain.VectorRecord) {
		removeDocument(next, documentID)
		ids := make(map[string]struct{}, len(prepared))
		for _, r := range prepared {
			ids[r.ID] = struct{}{}
		}
		next.removeIDs(ids)
		next.add(dedupe(prepared))
	})
}

func removeDocument(s *snapshot, documentID string) {
	for _, r := range s.byDoc[documentID] {
		delete(s.owner, r.ID)
	}
	delete(s.byDoc, documentID)
}

// dedupe keeps the last record for each ID.
func dedupe(records []domain.VectorRecord) []domain.VectorRecord {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.ID] = i
	}
	if len(last) == len(records) {
		return records
	}
	out := make([]domain.VectorRecord, 0, len(last))
	for i, r := range records {
		if last[r.ID] == i {
			out = append(out, r)
		}
	}
	return out
}

// Search scores every record against the query and returns the best k.
func (x *Index) Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]driven.VectorHit, error) {
	if len(query) != x.dims {
		return nil, vector.MismatchError(len(query), x.dims)
	}
	snap, err := x.load()
	if err != nil {
		return nil, &domain.IndexError{Op: "search", Err: err}
	}
	if k <= 0 {
		return nil, nil
	}

	q := vector.Prepare(query, x.metric)

	var hits []driven.VectorHit
	for doc, recs := range snap.byDoc {
		if !filter.Matches(doc) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range recs {
			hits = append(hits, driven.VectorHit{Record: r, Score: vector.Dot(q, r.Vector)})
		}
	}

	return vector.TopK(hits, k), nil
}

// Count returns the number of stored records.
func (x *Index) Count(_ context.Context) (int, error) {
	snap, err := x.load()
	if err != nil {
		return 0, &domain.IndexError{Op: "count", Err: err}
	}
	return len(snap.owner), nil
}

// DocumentCount returns the number of documents with at least one record.
func (x *Index) DocumentCount() int {
	snap, err := x.load()
	if err != nil {
		return 0
	}
	return len(snap.byDoc)
}

// Dimensions returns the fixed vector length of the index.
func (x *Index) Dimensions() int {
	return x.dims
}

// Metric returns the similarity metric.
func (x *Index) Metric() domain.SimilarityMetric {
	return x.metric
}

// Close drops all records. Further calls fail with domain.ErrIndexClosed.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.current = nil
	return nil
}

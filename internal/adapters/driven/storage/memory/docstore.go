package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// Ensure stores implement the interfaces.
var (
	_ driven.DocumentStore  = (*DocumentStore)(nil)
	_ driven.DeviationStore = (*DeviationStore)(nil)
)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("saving document: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	return nil
}

// SaveChunks replaces the chunks of every document present in chunks.
func (s *DocumentStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	grouped := make(map[string][]domain.Chunk)
	for _, c := range chunks {
		grouped[c.DocumentID] = append(grouped[c.DocumentID], c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for docID := range grouped {
		if _, ok := s.documents[docID]; !ok {
			return fmt.Errorf("saving chunks for %s: %w", docID, domain.ErrNotFound)
		}
	}
	for docID, group := range grouped {
		sort.Slice(group, func(i, j int) bool { return group[i].Sequence < group[j].Sequence })
		s.chunks[docID] = group
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetChunks retrieves all chunks for a document.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[documentID]
	if len(chunks) == 0 {
		return nil, nil
	}
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *DocumentStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID == id {
				return &chunk, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

// ListDocuments returns all documents ordered by filename.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		result = append(result, doc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Filename != result[j].Filename {
			return result[i].Filename < result[j].Filename
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeviationStore is an in-memory implementation of driven.DeviationStore.
type DeviationStore struct {
	mu      sync.RWMutex
	records map[string]domain.DeviationRecord
}

// NewDeviationStore creates a new in-memory deviation store.
func NewDeviationStore() *DeviationStore {
	return &DeviationStore{records: make(map[string]domain.DeviationRecord)}
}

// SaveDeviation stores or updates a deviation record.
func (s *DeviationStore) SaveDeviation(_ context.Context, rec *domain.DeviationRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("saving deviation: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = *rec
	return nil
}

// ListDeviations returns records that occurred at or after since, newest first.
func (s *DeviationStore) ListDeviations(_ context.Context, since time.Time) ([]domain.DeviationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DeviationRecord
	for _, rec := range s.records {
		if rec.OccurredAt.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

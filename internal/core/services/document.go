package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
)

var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService is the read side of the corpus.
type DocumentService struct {
	docs driven.DocumentStore
}

// NewDocumentService returns a DocumentService over docs.
func NewDocumentService(docs driven.DocumentStore) *DocumentService {
	return &DocumentService{docs: docs}
}

// List returns every document, ordered by filename.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docs.ListDocuments(ctx)
}

// Get returns one document or domain.ErrNotFound.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, documentID)
}

// Chunks returns documentID's chunks in sequence order. An unknown ID is
// domain.ErrNotFound rather than an empty list.
func (s *DocumentService) Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.docs.GetChunks(ctx, documentID)
}

// GetDetails summarises a document for display. Metadata values are
// rendered with %v.
func (s *DocumentService) GetDetails(ctx context.Context, documentID string) (*driving.DocumentDetails, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.docs.GetChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunks of %s: %w", documentID, err)
	}

	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = fmt.Sprint(v)
	}

	return &driving.DocumentDetails{
		ID:         doc.ID,
		Filename:   doc.Filename,
		ChunkCount: len(chunks),
		Characters: len([]rune(doc.Content)),
		UploadedAt: doc.UploadedAt,
		Metadata:   meta,
	}, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*documentStore)(nil)

type documentStore struct {
	store *Store
}

const (
	documentColumns = "id, filename, content, metadata, uploaded_at"
	chunkColumns    = "id, document_id, sequence, span_start, span_end, content"
)

// SaveDocument upserts doc. Its chunks are untouched.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("save document: %w", domain.ErrInvalidInput)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata of %s: %w", doc.ID, err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename    = excluded.filename,
			content     = excluded.content,
			metadata    = excluded.metadata,
			uploaded_at = excluded.uploaded_at`,
		doc.ID, doc.Filename, doc.Content, string(meta), toUnixNano(doc.UploadedAt))
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// SaveChunks replaces, in one transaction, the full chunk set of every
// document that appears in chunks.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		owners := map[string]struct{}{}
		for _, c := range chunks {
			if _, seen := owners[c.DocumentID]; seen {
				continue
			}
			owners[c.DocumentID] = struct{}{}
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", c.DocumentID); err != nil {
				return fmt.Errorf("clear chunks of %s: %w", c.DocumentID, err)
			}
		}

		insert, err := tx.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer insert.Close()

		for _, c := range chunks {
			if _, err := insert.ExecContext(ctx, c.ID, c.DocumentID, c.Sequence, c.Span.Start, c.Span.End, c.Content); err != nil {
				return fmt.Errorf("save chunk %d of %s: %w", c.Sequence, c.DocumentID, err)
			}
		}
		return nil
	})
}

// GetDocument returns domain.ErrNotFound for an unknown id.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return scanDocument(s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
}

// GetChunks returns documentID's chunks by sequence.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY sequence`, documentID)
	return collect(rows, err, "chunks", scanChunk)
}

// GetChunk returns domain.ErrNotFound for an unknown id.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	return scanChunk(s.store.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
}

// DeleteDocument removes the document. Its chunks go with it through the
// ON DELETE CASCADE foreign key.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	} else if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDocuments returns every document by filename, then id.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY filename, id`)
	return collect(rows, err, "documents", scanDocument)
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc      domain.Document
		meta     sql.NullString
		uploaded int64
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.Content, &meta, &uploaded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", doc.ID, err)
		}
	}
	doc.UploadedAt = fromUnixNano(uploaded)
	return &doc, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.Sequence, &c.Span.Start, &c.Span.End, &c.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return &c, nil
}

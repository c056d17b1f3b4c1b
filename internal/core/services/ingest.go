package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// documentNamespace scopes document IDs derived from filenames.
var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sopctx:document"))

// DefaultIngestConcurrency is the number of documents a batch ingests at once.
const DefaultIngestConcurrency = 4

// DocumentID derives the stable ID of a document from its filename.
// Only the base name counts so the same SOP ingested from another
// directory replaces the earlier copy.
func DocumentID(filename string) string {
	return uuid.NewSHA1(documentNamespace, []byte(filepath.Base(filename))).String()
}

// itemEmbedder embeds many texts and reports failures per item.
type itemEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, []*domain.EmbeddingError)
}

// IngestService runs the write path: chunk, embed, index.
type IngestService struct {
	docStore     driven.DocumentStore
	index        driven.VectorIndex
	pipeline     driven.PostProcessorPipeline
	embedder     itemEmbedder
	indexTimeout time.Duration
	concurrency  int
	locks        *keyedMutex
	now          func() time.Time
}

// IngestOption configures an IngestService.
type IngestOption func(*IngestService)

// WithIndexTimeout bounds each vector index call.
func WithIndexTimeout(d time.Duration) IngestOption {
	return func(s *IngestService) {
		if d > 0 {
			s.indexTimeout = d
		}
	}
}

// WithConcurrency sets how many documents IngestBatch processes at once.
func WithConcurrency(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewIngestService creates a new ingestion service. An embedder that is not
// already a *ResilientEmbedder is wrapped in one with default settings.
// With a nil index every write fails with domain.ErrIndexUnavailable.
func NewIngestService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	pipeline driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	opts ...IngestOption,
) *IngestService {
	items, ok := embedder.(itemEmbedder)
	if !ok {
		items = NewResilientEmbedder(embedder, domain.DefaultSettings().Embedding)
	}

	s := &IngestService{
		docStore:     docStore,
		index:        index,
		pipeline:     pipeline,
		embedder:     items,
		indexTimeout: domain.DefaultSettings().Index.Timeout,
		concurrency:  DefaultIngestConcurrency,
		locks:        newKeyedMutex(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest chunks, embeds and indexes a single document. Re-ingesting an ID
// replaces the earlier version atomically. Failures are *domain.IngestionError.
func (s *IngestService) Ingest(ctx context.Context, req driving.IngestRequest) (*driving.IngestResult, error) {
	id := req.ID
	if id == "" {
		if req.Filename == "" {
			return nil, &domain.IngestionError{Err: fmt.Errorf("filename or id required: %w", domain.ErrInvalidInput)}
		}
		id = DocumentID(req.Filename)
	}

	doc := &domain.Document{
		ID:         id,
		Filename:   req.Filename,
		Content:    req.Content,
		UploadedAt: s.now(),
		Metadata:   req.Metadata,
	}
	if doc.Filename == "" {
		doc.Filename = id
	}

	return s.ingest(ctx, doc)
}

func (s *IngestService) ingest(ctx context.Context, doc *domain.Document) (*driving.IngestResult, error) {
	unlock := s.locks.Lock(doc.ID)
	defer unlock()

	fail := func(err error) (*driving.IngestResult, error) {
		return nil, &domain.IngestionError{DocumentID: doc.ID, Filename: doc.Filename, Err: err}
	}
	if s.index == nil {
		return fail(errNoIndex("replace"))
	}

	start := time.Now()
	logger.Debug("ingest: %s (%s)", doc.Filename, doc.ID)

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(domain.ErrEmptyDocument)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, failed := s.embedder.EmbedAll(ctx, texts)
	if len(failed) > 0 {
		errs := make([]error, 0, len(failed)+1)
		errs = append(errs, fmt.Errorf("%d of %d chunks: %w", len(failed), len(chunks), domain.ErrPartialEmbedding))
		for _, f := range failed {
			errs = append(errs, f)
		}
		return fail(errors.Join(errs...))
	}

	records := make([]domain.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.VectorRecord{
			ID:         c.ID,
			DocumentID: doc.ID,
			Sequence:   c.Sequence,
			Span:       c.Span,
			Text:       c.Content,
			Source:     doc.Filename,
			Vector:     vecs[i],
		}
	}

	previous, prevChunks, err := s.snapshot(ctx, doc.ID)
	if err != nil {
		return fail(err)
	}

	if err := s.store(ctx, doc, chunks); err != nil {
		s.restore(doc.ID, previous, prevChunks)
		return fail(err)
	}

	ictx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	err = s.index.ReplaceDocument(ictx, doc.ID, records)
	cancel()
	if err != nil {
		s.restore(doc.ID, previous, prevChunks)
		return fail(err)
	}

	logger.Elapsed("ingest "+doc.Filename, start)
	return &driving.IngestResult{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Chunks:     len(chunks),
		Replaced:   previous != nil,
	}, nil
}

// snapshot returns the stored document and chunks, or nil if there is none.
func (s *IngestService) snapshot(ctx context.Context, id string) (*domain.Document, []domain.Chunk, error) {
	doc, err := s.docStore.GetDocument(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	chunks, err := s.docStore.GetChunks(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

func (s *IngestService) store(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

// restore puts the document store back to the given version, or removes the
// document when there is none, so it keeps matching the index. It runs even
// if the caller was cancelled.
func (s *IngestService) restore(id string, previous *domain.Document, chunks []domain.Chunk) {
	ctx := context.Background()
	var err error
	if previous == nil {
		err = s.docStore.DeleteDocument(ctx, id)
	} else if err = s.docStore.SaveDocument(ctx, previous); err == nil {
		err = s.docStore.SaveChunks(ctx, chunks)
	}
	if err != nil {
		logger.Error("could not restore document %s; run reindex: %v", id, err)
	}
}

// IngestBatch ingests documents concurrently. Results are in request order;
// a failed document carries its *domain.IngestionError and does not stop others.
func (s *IngestService) IngestBatch(ctx context.Context, reqs []driving.IngestRequest) []driving.IngestResult {
	results := make([]driving.IngestResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Ingest(ctx, req)
			if err != nil {
				results[i] = failedResult(req, err)
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func failedResult(req driving.IngestRequest, err error) driving.IngestResult {
	res := driving.IngestResult{Filename: req.Filename, DocumentID: req.ID, Err: err}
	var ingErr *domain.IngestionError
	if errors.As(err, &ingErr) {
		res.DocumentID = ingErr.DocumentID
	}
	return res
}

// Delete removes a document and its chunks, then its vector records. If the
// index delete fails the document is put back so it stays retrievable.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	if s.index == nil {
		return errNoIndex("delete")
	}

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	chunks, err := s.docStore.GetChunks(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	ictx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	err = s.index.DeleteDocument(ictx, documentID)
	cancel()
	if err != nil {
		s.restore(documentID, doc, chunks)
		return err
	}
	return nil
}

// Reindex re-chunks and re-embeds every stored document. It is used after
// changing the chunker or embedding settings.
func (s *IngestService) Reindex(ctx context.Context) ([]driving.IngestResult, error) {
	docs, err := s.docStore.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	results := make([]driving.IngestResult, 0, len(docs))
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		doc := docs[i]
		res, err := s.ingest(ctx, &doc)
		if err != nil {
			results = append(results, failedResult(driving.IngestRequest{ID: doc.ID, Filename: doc.Filename}, err))
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

func errNoIndex(op string) error {
	return &domain.IndexError{Op: op, Err: domain.ErrIndexUnavailable}
}

// CheckCompatibility fails when the embedder, the configured dimensions and
// the index disagree on vector size. Call it at startup. A nil index is
// only checked against the embedder.
func CheckCompatibility(embedder driven.EmbeddingService, index driven.VectorIndex, configured int) error {
	if embedder.Dimensions() != configured {
		return &domain.ConfigurationError{
			Field: "embedding.dimensions",
			Err: fmt.Errorf("model %s produces %d, configured %d: %w",
				embedder.ModelName(), embedder.Dimensions(), configured, domain.ErrDimensionMismatch),
		}
	}
	if index != nil && index.Dimensions() != configured {
		return &domain.ConfigurationError{
			Field: "embedding.dimensions",
			Err: fmt.Errorf("index holds %d, configured %d; run reindex after changing models: %w",
				index.Dimensions(), configured, domain.ErrDimensionMismatch),
		}
	}
	return nil
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

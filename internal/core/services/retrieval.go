package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalService runs the read path: embed the query, search the index,
// filter and cap the hits, and assemble context.
type RetrievalService struct {
	embedder     driven.EmbeddingService
	index        driven.VectorIndex
	assembler    *Assembler
	defaults     domain.RetrievalSettings
	embedTimeout time.Duration
	indexTimeout time.Duration
}

// NewRetrievalService creates a retrieval service. A nil index makes every
// retrieval report FailureIndexUnavailable.
func NewRetrievalService(embedder driven.EmbeddingService, index driven.VectorIndex, settings domain.Settings) *RetrievalService {
	return &RetrievalService{
		embedder:     embedder,
		index:        index,
		assembler:    NewAssembler(settings.Context),
		defaults:     settings.Retrieval,
		embedTimeout: settings.Embedding.Timeout,
		indexTimeout: settings.Index.Timeout,
	}
}

// Retrieve returns the most relevant chunks for query, best first.
// It never fails: problems are reported in the result's Failure.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) domain.Retrieval {
	out := domain.Retrieval{Query: query}

	query = strings.TrimSpace(query)
	if query == "" {
		out.Failure = &domain.RetrievalFailure{Kind: domain.FailureEmptyQuery, Err: domain.ErrInvalidInput}
		return out
	}
	if s.index == nil {
		out.Failure = &domain.RetrievalFailure{Kind: domain.FailureIndexUnavailable, Err: domain.ErrIndexUnavailable}
		return out
	}

	k, minScore, perDocCap := s.resolve(opts)

	vec, err := s.embed(ctx, query)
	if err != nil {
		out.Failure = failure(ctx, err, domain.FailureEmbedding)
		logger.Warn("retrieve: embedding query failed: %v", err)
		return out
	}

	ictx, cancel := withTimeout(ctx, s.indexTimeout)
	hits, err := s.index.Search(ictx, vec, k*s.overfetch(), domain.SearchFilter{DocumentIDs: opts.DocumentIDs})
	cancel()
	if err != nil {
		out.Failure = failure(ctx, err, domain.FailureIndexUnavailable)
		logger.Warn("retrieve: index search failed: %v", err)
		return out
	}

	perDoc := make(map[string]int)
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
		if perDocCap > 0 && perDoc[hit.Record.DocumentID] >= perDocCap {
			continue
		}
		perDoc[hit.Record.DocumentID]++
		out.Results = append(out.Results, domain.ScoredChunk{
			Chunk:  hit.Record.Chunk(),
			Source: hit.Record.Source,
			Score:  hit.Score,
		})
		if len(out.Results) == k {
			break
		}
	}

	logger.Debug("retrieve: %d hit(s), %d kept (k=%d, min_score=%.2f, cap=%d)",
		len(hits), len(out.Results), k, minScore, perDocCap)
	return out
}

// Context retrieves and assembles the bounded context for a query.
func (s *RetrievalService) Context(ctx context.Context, query string, opts domain.RetrievalOptions) (domain.Retrieval, domain.AssembledContext) {
	r := s.Retrieve(ctx, query, opts)
	return r, s.assembler.Assemble(r.Results, 0)
}

func (s *RetrievalService) resolve(opts domain.RetrievalOptions) (k int, minScore float64, perDocCap int) {
	k = opts.K
	if k <= 0 {
		k = s.defaults.K
	}
	k = min(k, domain.MaxRetrievalK)
	minScore = s.defaults.MinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	perDocCap = s.defaults.PerDocumentCap
	if opts.PerDocumentCap != nil {
		perDocCap = *opts.PerDocumentCap
	}
	return k, minScore, perDocCap
}

func (s *RetrievalService) overfetch() int {
	return min(max(s.defaults.OverfetchFactor, 1), domain.MaxOverfetchFactor)
}

func (s *RetrievalService) embed(ctx context.Context, query string) ([]float32, error) {
	ectx, cancel := withTimeout(ctx, s.embedTimeout)
	defer cancel()
	return s.embedder.Embed(ectx, query)
}

// failure classifies err. Caller cancellation wins over the timeout
// the call itself may have hit.
func failure(ctx context.Context, err error, fallback domain.FailureKind) *domain.RetrievalFailure {
	kind := fallback
	switch {
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		kind = domain.FailureCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.FailureTimeout
	}
	return &domain.RetrievalFailure{Kind: kind, Err: err}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

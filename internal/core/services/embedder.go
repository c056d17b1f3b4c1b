package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// Ensure ResilientEmbedder implements the interface.
var _ driven.EmbeddingService = (*ResilientEmbedder)(nil)

// maxBackoff caps the delay between retries.
const maxBackoff = 10 * time.Second

// ResilientEmbedder wraps an embedding service with batching, bounded
// retries, per-call timeouts and optional rate limiting.
type ResilientEmbedder struct {
	inner       driven.EmbeddingService
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewResilientEmbedder wraps inner using the given settings.
// Non-positive values fall back to the defaults.
func NewResilientEmbedder(inner driven.EmbeddingService, cfg domain.EmbeddingSettings) *ResilientEmbedder {
	d := domain.DefaultSettings().Embedding
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = d.Backoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}

	e := &ResilientEmbedder{
		inner:       inner,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		timeout:     cfg.Timeout,
		sleep:       sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e
}

// Embed generates a vector for a single text, retrying transient failures.
// Failures are reported as *domain.EmbeddingError with Index 0.
func (e *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, attempts, err := e.embedOne(ctx, text)
	if err != nil {
		return nil, &domain.EmbeddingError{Index: 0, Attempts: attempts, Err: err}
	}
	return vec, nil
}

// EmbedBatch embeds every text or fails. The error joins one
// *domain.EmbeddingError per failed input.
func (e *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, failed := e.EmbedAll(ctx, texts)
	if len(failed) > 0 {
		errs := make([]error, len(failed))
		for i, f := range failed {
			errs[i] = f
		}
		return nil, errors.Join(errs...)
	}
	return vecs, nil
}

// EmbedAll embeds texts in batches. When a batch fails after its retries
// the items are embedded one by one so a single bad input only fails
// itself. The result has a nil vector at each failed index.
func (e *ResilientEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, []*domain.EmbeddingError) {
	out := make([][]float32, len(texts))
	var failed []*domain.EmbeddingError

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var vecs [][]float32
		attempts, err := e.retry(ctx, func(callCtx context.Context) error {
			v, err := e.inner.EmbedBatch(callCtx, batch)
			if err != nil {
				return err
			}
			if err := e.check(v, len(batch)); err != nil {
				return err
			}
			vecs = v
			return nil
		})
		if err == nil {
			copy(out[start:end], vecs)
			continue
		}

		if len(batch) == 1 || !isolatable(ctx, err) {
			for i := range batch {
				failed = append(failed, &domain.EmbeddingError{Index: start + i, Attempts: attempts, Err: err})
			}
			continue
		}

		logger.Warn("embedding: batch %d-%d failed after %d attempt(s), embedding items individually: %v",
			start, end-1, attempts, err)
		for i, text := range batch {
			vec, n, err := e.embedOne(ctx, text)
			if err != nil {
				failed = append(failed, &domain.EmbeddingError{Index: start + i, Attempts: n, Err: err})
				continue
			}
			out[start+i] = vec
		}
	}

	return out, failed
}

func (e *ResilientEmbedder) embedOne(ctx context.Context, text string) ([]float32, int, error) {
	var vec []float32
	attempts, err := e.retry(ctx, func(callCtx context.Context) error {
		v, err := e.inner.Embed(callCtx, text)
		if err != nil {
			return err
		}
		if err := e.check([][]float32{v}, 1); err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, attempts, err
}

// retry runs fn until it succeeds, fails permanently or runs out of
// attempts. It returns the number of attempts made.
func (e *ResilientEmbedder) retry(ctx context.Context, fn func(context.Context) error) (int, error) {
	delay := e.backoff
	for attempt := 1; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return attempt - 1, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}
		if !retryable(err) || attempt >= e.maxAttempts {
			return attempt, err
		}

		logger.Debug("embedding: attempt %d/%d failed, retrying in %s: %v", attempt, e.maxAttempts, delay, err)
		if err := e.sleep(ctx, delay); err != nil {
			return attempt, err
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// check verifies the vector count and dimensions of a response.
func (e *ResilientEmbedder) check(vecs [][]float32, n int) error {
	if len(vecs) != n {
		return fmt.Errorf("got %d vectors for %d inputs: %w", len(vecs), n, domain.ErrEmbeddingFailed)
	}
	dims := e.inner.Dimensions()
	for _, v := range vecs {
		if len(v) != dims {
			return &domain.ConfigurationError{
				Field: "embedding.dimensions",
				Err:   fmt.Errorf("model returned %d, configured %d: %w", len(v), dims, domain.ErrDimensionMismatch),
			}
		}
	}
	return nil
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return false
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmbeddingUnavailable):
		return false
	default:
		return true
	}
}

// isolatable reports whether retrying items one by one is worthwhile.
func isolatable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cfgErr *domain.ConfigurationError
	return !errors.As(err, &cfgErr) && !errors.Is(err, domain.ErrEmbeddingUnavailable)
}

// Dimensions returns the wrapped service's vector size.
func (e *ResilientEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// ModelName returns the wrapped service's model name.
func (e *ResilientEmbedder) ModelName() string {
	return e.inner.ModelName()
}

// Ping checks the wrapped service under the call timeout.
func (e *ResilientEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.Ping(ctx)
}

// Close releases the wrapped service.
func (e *ResilientEmbedder) Close() error {
	return e.inner.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

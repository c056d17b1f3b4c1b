package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/sopctx/internal/adapters/driven/ai"
	"github.com/custodia-labs/sopctx/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sopctx/internal/adapters/driven/storage/sqlite"
	vectormem "github.com/custodia-labs/sopctx/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/sopctx/internal/adapters/driven/vector/pgvector"
	"github.com/custodia-labs/sopctx/internal/adapters/driving/cli"
	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/services"
	"github.com/custodia-labs/sopctx/internal/logger"
	"github.com/custodia-labs/sopctx/internal/normalisers"
	"github.com/custodia-labs/sopctx/internal/postprocessors"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// bootstrap builds the services for one command run.
func bootstrap(ctx context.Context, opts cli.BootstrapOptions) (*cli.Services, func() error, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(opts.Home, "config.toml")
	}

	configStore, err := file.OpenConfigFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)

	prompts, err := file.NewPromptStore(filepath.Join(opts.Home, "prompts"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading prompts: %w", err)
	}

	svcs := &cli.Services{
		Settings:  settingsService,
		Extractor: normalisers.DefaultRegistry(),
		Check:     connectivityCheck(prompts),
	}
	if !opts.Pipeline && !opts.Rebuild {
		return svcs, func() error { return nil }, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}

	var cl closers
	fail := func(err error) (*cli.Services, func() error, error) {
		if cerr := cl.close(); cerr != nil {
			logger.Warn("releasing after failed start: %v", cerr)
		}
		return nil, nil, err
	}

	store, err := sqlite.NewStore(opts.Home)
	if err != nil {
		return fail(fmt.Errorf("opening database: %w", err))
	}
	cl.add(store.Close)

	if opts.Rebuild {
		if err := resetIndex(ctx, store, settings); err != nil {
			return fail(err)
		}
	}

	index, err := openIndex(ctx, store, settings)
	switch {
	case err == nil:
		cl.add(index.Close)
	case errors.Is(err, domain.ErrIndexUnavailable) && !opts.Rebuild:
		// Queries report the failure and ingestion fails per document.
		logger.Warn("vector index unavailable, continuing without it: %v", err)
		index = nil
	default:
		return fail(err)
	}

	ais, err := ai.NewServices(settings, prompts)
	if err != nil {
		return fail(err)
	}
	cl.add(ais.Close)

	embedder := services.NewResilientEmbedder(ais.Embedder, settings.Embedding)
	if err := services.CheckCompatibility(embedder, index, settings.Embedding.Dimensions); err != nil {
		return fail(err)
	}

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	pipeline, err := registry.BuildPipeline(settingsService.GetPipelineConfig())
	if err != nil {
		return fail(err)
	}

	ingest := services.NewIngestService(store.DocumentStore(), index, pipeline, embedder,
		services.WithIndexTimeout(settings.Index.Timeout))
	retrieval := services.NewRetrievalService(embedder, index, *settings)

	if index != nil && settings.Index.Backend == domain.IndexBackendMemory && !opts.Rebuild {
		if err := warmMemoryIndex(ctx, store.DocumentStore(), ingest); err != nil {
			return fail(err)
		}
	}

	svcs.Ingest = ingest
	svcs.Documents = services.NewDocumentService(store.DocumentStore())
	svcs.Retrieval = retrieval
	svcs.Answer = services.NewAnswerService(retrieval, ais.Generator)
	svcs.Analysis = services.NewAnalysisService(retrieval, ais.Generator, store.DeviationStore())
	svcs.Trends = services.NewTrendService(store.DeviationStore())
	svcs.Retraining = services.NewRetrainingService(store.DeviationStore(), embedder, retrieval, ais.Generator, *settings)

	logger.Debug("pipeline ready: %s index, %s embeddings (%d dims)",
		settings.Index.Backend, settings.Embedding.Provider, settings.Embedding.Dimensions)
	return svcs, cl.close, nil
}

// openIndex opens the configured vector index backend. On error the
// returned index is nil.
func openIndex(ctx context.Context, store *sqlite.Store, settings *domain.Settings) (driven.VectorIndex, error) {
	dims := settings.Embedding.Dimensions
	metric := settings.Index.Metric

	switch settings.Index.Backend {
	case domain.IndexBackendMemory:
		index, err := vectormem.New(dims, metric)
		if err != nil {
			return nil, err
		}
		return index, nil
	case domain.IndexBackendSQLite:
		index, err := store.VectorIndex(ctx, dims, metric)
		if err != nil {
			return nil, err
		}
		return index, nil
	case domain.IndexBackendPostgres:
		index, err := pgvector.Open(ctx, settings.Index.DSN, dims, metric)
		if err != nil {
			return nil, err
		}
		return index, nil
	default:
		return nil, &domain.ConfigurationError{
			Field: "index.backend",
			Err:   fmt.Errorf("unsupported backend %q: %w", settings.Index.Backend, domain.ErrUnsupportedType),
		}
	}
}

// resetIndex discards stored vectors so the index can be reopened with
// the configured dimensions and metric.
func resetIndex(ctx context.Context, store *sqlite.Store, settings *domain.Settings) error {
	switch settings.Index.Backend {
	case domain.IndexBackendSQLite:
		return store.ResetVectorIndex(ctx)
	case domain.IndexBackendPostgres:
		return pgvector.Reset(ctx, settings.Index.DSN)
	default:
		return nil
	}
}

// warmMemoryIndex re-embeds the stored documents into a fresh in-memory index.
func warmMemoryIndex(ctx context.Context, docs driven.DocumentStore, ingest *services.IngestService) error {
	stored, err := docs.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(stored) == 0 {
		return nil
	}

	logger.Info("indexing %d stored document(s) into memory", len(stored))
	results, err := ingest.Reindex(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("%v", r.Err)
		}
	}
	return nil
}

// connectivityCheck pings the embedding and generation endpoints.
func connectivityCheck(prompts driven.PromptStore) cli.ConnectivityCheck {
	return func(_ context.Context, settings *domain.Settings) error {
		if err := ai.ValidateEmbeddingConfig(&settings.Embedding); err != nil {
			return err
		}
		return ai.ValidateLLMConfig(&settings.LLM, prompts)
	}
}

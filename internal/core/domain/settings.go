package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the service that turns text into vectors.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderHashing is the offline feature-hashing embedder.
	EmbeddingProviderHashing EmbeddingProvider = "hashing"

	// EmbeddingProviderOpenAI is the OpenAI embeddings API (or a compatible endpoint).
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderHashing, EmbeddingProviderOpenAI, EmbeddingProviderOllama:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// IsLocal returns true if this provider runs without network access to a cloud API.
func (p EmbeddingProvider) IsLocal() bool {
	return p == EmbeddingProviderHashing || p == EmbeddingProviderOllama
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderHashing:
		return "Feature hashing (offline)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	case EmbeddingProviderOllama:
		return "Ollama (local)"
	default:
		return unknownDescription
	}
}

// IndexBackend identifies where vector records are stored.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendMemory keeps records in process memory only.
	IndexBackendMemory IndexBackend = "memory"

	// IndexBackendSQLite persists records in the local SQLite database.
	IndexBackendSQLite IndexBackend = "sqlite"

	// IndexBackendPostgres stores records in PostgreSQL with the pgvector extension.
	IndexBackendPostgres IndexBackend = "postgres"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	switch b {
	case IndexBackendMemory, IndexBackendSQLite, IndexBackendPostgres:
		return true
	default:
		return false
	}
}

// RequiresDSN returns true if the backend needs a connection string.
func (b IndexBackend) RequiresDSN() bool {
	return b == IndexBackendPostgres
}

// String returns the string representation.
func (b IndexBackend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b IndexBackend) Description() string {
	switch b {
	case IndexBackendMemory:
		return "In-memory (not persisted)"
	case IndexBackendSQLite:
		return "SQLite (local file)"
	case IndexBackendPostgres:
		return "PostgreSQL + pgvector"
	default:
		return unknownDescription
	}
}

// ChunkerSettings controls how documents are split.
type ChunkerSettings struct {
	// ChunkSize is the window length in characters.
	ChunkSize int

	// OverlapFraction is the share of a window repeated in the next one.
	OverlapFraction float64
}

// Overlap returns the overlap in characters, rounded to the nearest integer.
func (c ChunkerSettings) Overlap() int {
	return int(float64(c.ChunkSize)*c.OverlapFraction + 0.5)
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider EmbeddingProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the fixed vector length every embedding must have.
	Dimensions int

	// BatchSize is the number of texts sent per call.
	BatchSize int

	// MaxAttempts bounds retries of a failing call, including the first try.
	MaxAttempts int

	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration

	// Timeout bounds a single embedding call.
	Timeout time.Duration

	// RequestsPerSecond limits call rate. Zero disables limiting.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// IndexSettings holds vector index configuration.
type IndexSettings struct {
	// Backend selects the storage for vector records.
	Backend IndexBackend

	// DSN is the connection string for network backends.
	DSN string

	// Metric is the similarity metric.
	Metric SimilarityMetric

	// Timeout bounds a single index call.
	Timeout time.Duration
}

// Upper bounds on retrieval sizes. Requests asking for more are clamped.
const (
	MaxRetrievalK      = 100
	MaxOverfetchFactor = 10
)

// RetrievalSettings holds query-time defaults.
type RetrievalSettings struct {
	// K is the default number of results.
	K int

	// MinScore drops results scoring below it.
	MinScore float64

	// PerDocumentCap limits results from a single document. Zero disables the cap.
	PerDocumentCap int

	// OverfetchFactor multiplies K when querying the index so filtering
	// still leaves K results.
	OverfetchFactor int
}

// ContextSettings controls context assembly.
type ContextSettings struct {
	// MaxChars is the context budget in characters.
	MaxChars int

	// DedupThreshold is the Jaccard similarity at or above which a passage
	// is considered a duplicate of one already included.
	DedupThreshold float64
}

// LLMSettings holds generation client configuration.
type LLMSettings struct {
	// Model is the chat model name.
	Model string

	// BaseURL is the OpenAI-compatible API endpoint.
	BaseURL string

	// APIKey is the API key.
	APIKey string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens bounds the completion length.
	MaxTokens int

	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// IsConfigured returns true if a model is set.
func (l LLMSettings) IsConfigured() bool {
	return l.Model != ""
}

// Settings holds all pipeline settings.
type Settings struct {
	Chunker   ChunkerSettings
	Embedding EmbeddingSettings
	Index     IndexSettings
	Retrieval RetrievalSettings
	Context   ContextSettings
	LLM       LLMSettings
}

// DefaultSettings returns settings that work offline out of the box.
// The LLM is left unconfigured; commands needing it report ErrLLMUnavailable.
func DefaultSettings() Settings {
	return Settings{
		Chunker: ChunkerSettings{
			ChunkSize:       500,
			OverlapFraction: 0.2,
		},
		Embedding: EmbeddingSettings{
			Provider:    EmbeddingProviderHashing,
			Dimensions:  384,
			BatchSize:   32,
			MaxAttempts: 3,
			Backoff:     200 * time.Millisecond,
			Timeout:     30 * time.Second,
		},
		Index: IndexSettings{
			Backend: IndexBackendSQLite,
			Metric:  MetricCosine,
			Timeout: 10 * time.Second,
		},
		Retrieval: RetrievalSettings{
			K:               5,
			MinScore:        0.3,
			PerDocumentCap:  3,
			OverfetchFactor: 3,
		},
		Context: ContextSettings{
			MaxChars:       6000,
			DedupThreshold: 0.9,
		},
		LLM: LLMSettings{
			Temperature: 0.1,
			MaxTokens:   4000,
			Timeout:     60 * time.Second,
		},
	}
}

// Validate checks every setting and returns the first problem as a
// *ConfigurationError.
func (s Settings) Validate() error {
	checks := []struct {
		field string
		ok    bool
		msg   string
	}{
		{"chunker.chunk_size", s.Chunker.ChunkSize > 0, "must be positive"},
		{"chunker.overlap_fraction", s.Chunker.OverlapFraction >= 0 && s.Chunker.OverlapFraction < 1, "must be in [0, 1)"},
		{"chunker.overlap_fraction", s.Chunker.Overlap() < s.Chunker.ChunkSize, "overlap must be smaller than chunk_size"},
		{"embedding.provider", s.Embedding.Provider.IsValid(), fmt.Sprintf("unknown provider %q", s.Embedding.Provider)},
		{"embedding.api_key", !s.Embedding.Provider.RequiresAPIKey() || s.Embedding.APIKey != "", "required for " + s.Embedding.Provider.String()},
		{"embedding.dimensions", s.Embedding.Dimensions > 0, "must be positive"},
		{"embedding.batch_size", s.Embedding.BatchSize > 0, "must be positive"},
		{"embedding.max_attempts", s.Embedding.MaxAttempts > 0, "must be positive"},
		{"embedding.backoff", s.Embedding.Backoff >= 0, "must not be negative"},
		{"embedding.timeout", s.Embedding.Timeout > 0, "must be positive"},
		{"embedding.requests_per_second", s.Embedding.RequestsPerSecond >= 0, "must not be negative"},
		{"index.backend", s.Index.Backend.IsValid(), fmt.Sprintf("unknown backend %q", s.Index.Backend)},
		{"index.dsn", !s.Index.Backend.RequiresDSN() || s.Index.DSN != "", "required for " + s.Index.Backend.String()},
		{"index.metric", s.Index.Metric.IsValid(), fmt.Sprintf("unknown metric %q", s.Index.Metric)},
		{"index.timeout", s.Index.Timeout > 0, "must be positive"},
		{"retrieval.k", s.Retrieval.K > 0 && s.Retrieval.K <= MaxRetrievalK, fmt.Sprintf("must be in [1, %d]", MaxRetrievalK)},
		{"retrieval.per_document_cap", s.Retrieval.PerDocumentCap >= 0, "must not be negative"},
		{"retrieval.overfetch_factor", s.Retrieval.OverfetchFactor >= 1 && s.Retrieval.OverfetchFactor <= MaxOverfetchFactor, fmt.Sprintf("must be in [1, %d]", MaxOverfetchFactor)},
		{"context.max_chars", s.Context.MaxChars > 0, "must be positive"},
		{"context.dedup_threshold", s.Context.DedupThreshold > 0 && s.Context.DedupThreshold <= 1, "must be in (0, 1]"},
		{"llm.max_tokens", s.LLM.MaxTokens > 0, "must be positive"},
		{"llm.timeout", s.LLM.Timeout > 0, "must be positive"},
	}
	for _, c := range checks {
		if !c.ok {
			return &ConfigurationError{Field: c.field, Err: fmt.Errorf("%w: %s", ErrInvalidInput, c.msg)}
		}
	}
	return nil
}

// AllEmbeddingProviders returns every supported embedding provider.
func AllEmbeddingProviders() []EmbeddingProvider {
	return []EmbeddingProvider{
		EmbeddingProviderHashing,
		EmbeddingProviderOpenAI,
		EmbeddingProviderOllama,
	}
}

// AllIndexBackends returns every supported index backend.
func AllIndexBackends() []IndexBackend {
	return []IndexBackend{
		IndexBackendMemory,
		IndexBackendSQLite,
		IndexBackendPostgres,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[EmbeddingProvider]string {
	return map[EmbeddingProvider]string{
		EmbeddingProviderOllama: "all-minilm",
		EmbeddingProviderOpenAI: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfig derives the post-processor pipeline from the chunker settings.
func (s Settings) PipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size":       s.Chunker.ChunkSize,
				"overlap_fraction": s.Chunker.OverlapFraction,
			},
		},
	}
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return DefaultSettings().PipelineConfig()
}

package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyChunkSize       = "chunker.chunk_size"
	keyOverlapFraction = "chunker.overlap_fraction"
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDims       = "embedding.dimensions"
	keyEmbedBatch      = "embedding.batch_size"
	keyEmbedAttempts   = "embedding.max_attempts"
	keyEmbedBackoff    = "embedding.backoff"
	keyEmbedTimeout    = "embedding.timeout"
	keyEmbedRPS        = "embedding.requests_per_second"
	keyIndexBackend    = "index.backend"
	keyIndexDSN        = "index.dsn"
	keyIndexMetric     = "index.metric"
	keyIndexTimeout    = "index.timeout"
	keyRetrievalK      = "retrieval.k"
	keyMinScore        = "retrieval.min_score"
	keyPerDocCap       = "retrieval.per_document_cap"
	keyOverfetch       = "retrieval.overfetch_factor"
	keyContextChars    = "context.max_chars"
	keyDedupThreshold  = "context.dedup_threshold"
	keyLLMModel        = "llm.model"
	keyLLMBaseURL      = "llm.base_url"
	keyLLMAPIKey       = "llm.api_key"
	keyLLMTemperature  = "llm.temperature"
	keyLLMMaxTokens    = "llm.max_tokens"
	keyLLMTimeout      = "llm.timeout"
	keyProcessors      = "pipeline.processors"
)

// Environment variables consulted when no API key is configured, in order.
//
//nolint:gosec // G101: These are variable names, not credentials.
var (
	embeddingKeyEnv = []string{"SOPCTX_EMBEDDING_API_KEY", "OPENAI_API_KEY"}
	llmKeyEnv       = []string{"SOPCTX_LLM_API_KEY", "GROQ_API_KEY"}
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindDuration
)

// settingKinds lists every key Set accepts and how its value is parsed.
var settingKinds = map[string]keyKind{
	keyChunkSize:       kindInt,
	keyOverlapFraction: kindFloat,
	keyEmbedProvider:   kindString,
	keyEmbedModel:      kindString,
	keyEmbedBaseURL:    kindString,
	keyEmbedAPIKey:     kindString,
	keyEmbedDims:       kindInt,
	keyEmbedBatch:      kindInt,
	keyEmbedAttempts:   kindInt,
	keyEmbedBackoff:    kindDuration,
	keyEmbedTimeout:    kindDuration,
	keyEmbedRPS:        kindFloat,
	keyIndexBackend:    kindString,
	keyIndexDSN:        kindString,
	keyIndexMetric:     kindString,
	keyIndexTimeout:    kindDuration,
	keyRetrievalK:      kindInt,
	keyMinScore:        kindFloat,
	keyPerDocCap:       kindInt,
	keyOverfetch:       kindInt,
	keyContextChars:    kindInt,
	keyDedupThreshold:  kindFloat,
	keyLLMModel:        kindString,
	keyLLMBaseURL:      kindString,
	keyLLMAPIKey:       kindString,
	keyLLMTemperature:  kindFloat,
	keyLLMMaxTokens:    kindInt,
	keyLLMTimeout:      kindDuration,
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithEnv replaces the environment lookup used for API key fallbacks.
func WithEnv(getenv func(string) string) SettingsOption {
	return func(s *SettingsService) {
		s.getenv = getenv
	}
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, opts ...SettingsOption) *SettingsService {
	s := &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves current settings. Unset keys take their defaults.
// A malformed duration is reported as a *domain.ConfigurationError.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()

	provider := domain.EmbeddingProvider(s.getString(keyEmbedProvider, d.Embedding.Provider.String()))
	model := s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[provider])
	dims := d.Embedding.Dimensions
	if known, ok := domain.EmbeddingDimensions()[model]; ok {
		dims = known
	}

	settings := &domain.Settings{
		Chunker: domain.ChunkerSettings{
			ChunkSize:       s.getInt(keyChunkSize, d.Chunker.ChunkSize),
			OverlapFraction: s.getFloat(keyOverlapFraction, d.Chunker.OverlapFraction),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          provider,
			Model:             model,
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL), // empty means the adapter default
			APIKey:            s.apiKey(keyEmbedAPIKey, embeddingKeyEnv),
			Dimensions:        s.getInt(keyEmbedDims, dims),
			BatchSize:         s.getInt(keyEmbedBatch, d.Embedding.BatchSize),
			MaxAttempts:       s.getInt(keyEmbedAttempts, d.Embedding.MaxAttempts),
			RequestsPerSecond: s.getFloat(keyEmbedRPS, d.Embedding.RequestsPerSecond),
		},
		Index: domain.IndexSettings{
			Backend: domain.IndexBackend(s.getString(keyIndexBackend, d.Index.Backend.String())),
			DSN:     s.configStore.GetString(keyIndexDSN),
			Metric:  domain.SimilarityMetric(s.getString(keyIndexMetric, d.Index.Metric.String())),
		},
		Retrieval: domain.RetrievalSettings{
			K:               s.getInt(keyRetrievalK, d.Retrieval.K),
			MinScore:        s.getFloat(keyMinScore, d.Retrieval.MinScore),
			PerDocumentCap:  s.getInt(keyPerDocCap, d.Retrieval.PerDocumentCap),
			OverfetchFactor: s.getInt(keyOverfetch, d.Retrieval.OverfetchFactor),
		},
		Context: domain.ContextSettings{
			MaxChars:       s.getInt(keyContextChars, d.Context.MaxChars),
			DedupThreshold: s.getFloat(keyDedupThreshold, d.Context.DedupThreshold),
		},
		LLM: domain.LLMSettings{
			Model:       s.configStore.GetString(keyLLMModel),
			BaseURL:     s.configStore.GetString(keyLLMBaseURL),
			APIKey:      s.apiKey(keyLLMAPIKey, llmKeyEnv),
			Temperature: s.getFloat(keyLLMTemperature, d.LLM.Temperature),
			MaxTokens:   s.getInt(keyLLMMaxTokens, d.LLM.MaxTokens),
		},
	}

	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{keyEmbedBackoff, &settings.Embedding.Backoff, d.Embedding.Backoff},
		{keyEmbedTimeout, &settings.Embedding.Timeout, d.Embedding.Timeout},
		{keyIndexTimeout, &settings.Index.Timeout, d.Index.Timeout},
		{keyLLMTimeout, &settings.LLM.Timeout, d.LLM.Timeout},
	}
	for _, dur := range durations {
		v, err := s.getDuration(dur.key, dur.def)
		if err != nil {
			return nil, err
		}
		*dur.target = v
	}

	return settings, nil
}

// Save persists application settings. API keys are only written when set so
// keys supplied through the environment never land in the config file.
func (s *SettingsService) Save(settings *domain.Settings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyChunkSize, settings.Chunker.ChunkSize},
		{keyOverlapFraction, settings.Chunker.OverlapFraction},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedBatch, settings.Embedding.BatchSize},
		{keyEmbedAttempts, settings.Embedding.MaxAttempts},
		{keyEmbedBackoff, settings.Embedding.Backoff.String()},
		{keyEmbedTimeout, settings.Embedding.Timeout.String()},
		{keyEmbedRPS, settings.Embedding.RequestsPerSecond},
		{keyIndexBackend, settings.Index.Backend.String()},
		{keyIndexDSN, settings.Index.DSN},
		{keyIndexMetric, settings.Index.Metric.String()},
		{keyIndexTimeout, settings.Index.Timeout.String()},
		{keyRetrievalK, settings.Retrieval.K},
		{keyMinScore, settings.Retrieval.MinScore},
		{keyPerDocCap, settings.Retrieval.PerDocumentCap},
		{keyOverfetch, settings.Retrieval.OverfetchFactor},
		{keyContextChars, settings.Context.MaxChars},
		{keyDedupThreshold, settings.Context.DedupThreshold},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTemperature, settings.LLM.Temperature},
		{keyLLMMaxTokens, settings.LLM.MaxTokens},
		{keyLLMTimeout, settings.LLM.Timeout.String()},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if settings.Embedding.APIKey != "" && settings.Embedding.APIKey != s.envKey(embeddingKeyEnv) {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save %s: %w", keyEmbedAPIKey, err)
		}
	}
	if settings.LLM.APIKey != "" && settings.LLM.APIKey != s.envKey(llmKeyEnv) {
		if err := s.configStore.Set(keyLLMAPIKey, settings.LLM.APIKey); err != nil {
			return fmt.Errorf("save %s: %w", keyLLMAPIKey, err)
		}
	}

	return nil
}

// Set parses value according to the key's type and stores it.
// The previous value is restored if the result fails validation.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return &domain.ConfigurationError{Field: key, Err: fmt.Errorf("unknown key: %w", domain.ErrInvalidInput)}
	}

	parsed, err := parseSetting(kind, value)
	if err != nil {
		return &domain.ConfigurationError{Field: key, Err: fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)}
	}

	previous, existed := s.configStore.Get(key)
	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	if err := s.Validate(); err != nil {
		if existed {
			_ = s.configStore.Set(key, previous)
		} else {
			_ = s.configStore.Delete(key)
		}
		return err
	}
	return nil
}

func parseSetting(kind keyKind, value string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.Atoi(value)
	case kindFloat:
		return strconv.ParseFloat(value, 64)
	case kindDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return value, nil
	}
}

// Keys returns every configurable key, sorted.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.EmbeddingProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return &domain.ConfigurationError{
			Field: keyEmbedProvider,
			Err:   fmt.Errorf("unknown provider %q: %w", provider, domain.ErrUnsupportedType),
		}
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	if apiKey == "" {
		apiKey = settings.Embedding.APIKey
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return &domain.ConfigurationError{
			Field: keyEmbedAPIKey,
			Err:   fmt.Errorf("required for %s: %w", provider, domain.ErrInvalidInput),
		}
	}

	settings.Embedding.Provider = provider
	settings.Embedding.APIKey = apiKey

	// Set model - use provided or default
	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	settings.Embedding.Model = model

	// Local providers keep their base URL; cloud providers use the adapter default
	if !provider.IsLocal() {
		settings.Embedding.BaseURL = ""
	}

	// Update vector dimensions based on model
	if d, ok := domain.EmbeddingDimensions()[model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// Validate checks if current settings are valid.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// GetPipelineConfig returns the post-processor pipeline configuration.
// Returns the chunker-only pipeline if nothing is configured.
func (s *SettingsService) GetPipelineConfig() domain.PipelineConfig {
	settings, err := s.Get()
	if err != nil {
		return domain.DefaultPipelineConfig()
	}

	cfg := settings.PipelineConfig()
	if processors := s.configStore.GetStringSlice(keyProcessors); len(processors) > 0 {
		cfg.Processors = processors
	}
	return cfg
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	str := s.configStore.GetString(key)
	if str == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, &domain.ConfigurationError{Field: key, Err: fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)}
	}
	return d, nil
}

func (s *SettingsService) apiKey(key string, env []string) string {
	if v := s.configStore.GetString(key); v != "" {
		return v
	}
	return s.envKey(env)
}

func (s *SettingsService) envKey(env []string) string {
	for _, name := range env {
		if v := s.getenv(name); v != "" {
			return v
		}
	}
	return ""
}

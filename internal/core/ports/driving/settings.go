package driving

import "github.com/custodia-labs/sopctx/internal/core/domain"

// SettingsService reads and updates pipeline settings.
type SettingsService interface {
	// Get returns the current settings with defaults applied.
	Get() (*domain.Settings, error)

	// Save persists every setting.
	Save(settings *domain.Settings) error

	// Set parses value for a known key and persists it.
	// Values that would make the settings invalid are rejected and not stored.
	Set(key, value string) error

	// Keys returns every configurable key, sorted.
	Keys() []string

	// SetEmbeddingProvider switches the embedding provider, applying the
	// provider's default model and that model's dimensions.
	SetEmbeddingProvider(provider domain.EmbeddingProvider, model, apiKey string) error

	// Validate checks the current settings.
	Validate() error

	// GetPipelineConfig returns the post-processor pipeline configuration.
	GetPipelineConfig() domain.PipelineConfig
}

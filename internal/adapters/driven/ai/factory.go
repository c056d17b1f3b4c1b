// Package ai provides factory functions for creating the embedding and
// generation adapters from settings.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sopctx/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/sopctx/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sopctx/internal/adapters/driven/embedding/openai"
	openaillm "github.com/custodia-labs/sopctx/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Services holds the AI adapters built from settings.
type Services struct {
	Embedder driven.EmbeddingService

	// Generator is nil when no LLM is configured.
	Generator driven.GenerationService
}

// Close releases all resources held by the services.
func (s *Services) Close() error {
	var errs []error
	if s.Embedder != nil {
		errs = append(errs, s.Embedder.Close())
	}
	if s.Generator != nil {
		errs = append(errs, s.Generator.Close())
	}
	return errors.Join(errs...)
}

// NewServices creates the embedder and, if configured, the generator.
// An unconfigured LLM is not an error; ask and analyze report it when used.
func NewServices(settings *domain.Settings, prompts driven.PromptStore) (*Services, error) {
	embedder, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, err
	}

	generator, err := CreateGenerationService(&settings.LLM, prompts)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	return &Services{Embedder: embedder, Generator: generator}, nil
}

// CreateEmbeddingService creates the embedding service for the configured provider.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, &domain.ConfigurationError{Field: "embedding", Err: domain.ErrInvalidInput}
	}

	switch settings.Provider {
	case domain.EmbeddingProviderHashing:
		return hashing.NewEmbeddingService(settings.Dimensions), nil

	case domain.EmbeddingProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: settings.Dimensions,
		})

	case domain.EmbeddingProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: settings.Dimensions,
		}), nil

	default:
		return nil, &domain.ConfigurationError{
			Field: "embedding.provider",
			Err:   fmt.Errorf("unsupported provider %q: %w", settings.Provider, domain.ErrInvalidInput),
		}
	}
}

// CreateGenerationService creates the chat completion client.
// Returns nil if no model is configured.
func CreateGenerationService(settings *domain.LLMSettings, prompts driven.PromptStore) (driven.GenerationService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	return openaillm.NewLLMService(openaillm.LLMConfig{
		APIKey:      settings.APIKey,
		BaseURL:     settings.BaseURL,
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Timeout:     settings.Timeout,
		Prompts:     prompts,
	})
}

// ValidateEmbeddingConfig creates the embedding service and pings it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// ValidateLLMConfig creates the generation service and pings it.
// An unconfigured LLM is valid.
func ValidateLLMConfig(settings *domain.LLMSettings, prompts driven.PromptStore) error {
	svc, err := CreateGenerationService(settings, prompts)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return nil
}

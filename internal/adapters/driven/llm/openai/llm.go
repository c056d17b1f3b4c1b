// Package openai provides a generation service adapter for OpenAI-compatible
// chat completion APIs (OpenAI, Groq, Ollama's /v1 endpoint, vLLM).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.GenerationService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4000
	DefaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 2
)

// noContext stands in for the excerpts when retrieval found nothing.
const noContext = "(no matching procedure excerpts)"

// LLMConfig holds configuration for the generation service.
type LLMConfig struct {
	// APIKey is the API key. Required unless the endpoint is local.
	APIKey string

	// BaseURL is the API base URL (default: Groq's OpenAI-compatible endpoint).
	BaseURL string

	// Model is the chat model to use (required).
	Model string

	// Temperature is the sampling temperature (default: 0.1).
	Temperature float64

	// MaxTokens bounds the completion length (default: 4000).
	MaxTokens int

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration

	// Prompts supplies the templates for each task (required).
	Prompts driven.PromptStore
}

// LLMService generates answers through an OpenAI-compatible chat API.
type LLMService struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	prompts     driven.PromptStore
}

// NewLLMService creates a new generation service.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.Model == "" {
		return nil, &domain.ConfigurationError{Field: "llm.model", Err: domain.ErrLLMUnavailable}
	}
	if cfg.Prompts == nil {
		return nil, &domain.ConfigurationError{Field: "llm.prompts", Err: domain.ErrInvalidInput}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !isLocal(baseURL) && cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Field: "llm.api_key", Err: domain.ErrLLMUnavailable}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(defaultMaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &LLMService{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		prompts:     cfg.Prompts,
	}, nil
}

// isLocal reports whether the endpoint is on this machine, where no key is needed.
func isLocal(baseURL string) bool {
	return strings.Contains(baseURL, "://localhost") || strings.Contains(baseURL, "://127.0.0.1")
}

// Generate renders the task prompt and returns the model's reply.
func (s *LLMService) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	prompt, err := s.render(req)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(s.temperature),
		MaxTokens:   openai.Int(int64(s.maxTokens)),
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response: %w", domain.ErrMalformedResponse)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *LLMService) render(req domain.GenerationRequest) (string, error) {
	var name string
	switch req.Task {
	case domain.TaskAnswer, "":
		name = driven.PromptAnswer
	case domain.TaskDeviationAnalysis:
		name = driven.PromptDeviationAnalysis
	case domain.TaskRetraining:
		name = driven.PromptRetraining
	default:
		return "", fmt.Errorf("openai: task %q: %w", req.Task, domain.ErrUnsupportedType)
	}

	tmpl, err := s.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	contextText := req.Context.Text
	if contextText == "" {
		contextText = noContext
	}
	return fmt.Sprintf(tmpl, contextText, req.Query), nil
}

// classify maps transport and API errors onto domain sentinels.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai: %w", err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return &domain.ConfigurationError{
				Field: "llm.api_key",
				Err:   fmt.Errorf("%w: status %d", domain.ErrLLMUnavailable, apiErr.StatusCode),
			}
		}
		return fmt.Errorf("openai: API returned status %d: %w", apiErr.StatusCode, domain.ErrLLMUnavailable)
	}
	return fmt.Errorf("openai: %w: %w", domain.ErrLLMUnavailable, err)
}

// ModelName returns the name of the chat model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping checks the model exists without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}

package driven

import (
	"context"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// GenerationService conditions a language model on assembled context.
// This is an optional service - when nil, answers and deviation analysis are disabled.
//
// Implementations own their prompt templates and select one by request Task.
type GenerationService interface {
	// Generate produces the model's response for the request.
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

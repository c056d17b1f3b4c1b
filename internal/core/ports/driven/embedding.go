package driven

import "context"

// EmbeddingService turns text into fixed-width vectors. Storing and
// searching them is VectorIndex's job.
//
// Dimensions must match the index the vectors are written to. Changing the
// model or its width requires rebuilding the index.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string

	// Ping makes the cheapest request that proves the backend can serve
	// the configured model.
	Ping(ctx context.Context) error

	Close() error
}

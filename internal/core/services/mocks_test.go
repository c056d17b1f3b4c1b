package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// mockEmbedder is a configurable driven.EmbeddingService.
// Texts containing failOn fail every call; the first failBatches batch
// calls fail with batchErr.
type mockEmbedder struct {
	mu          sync.Mutex
	dims        int
	failOn      string
	itemErr     error
	failBatches int
	batchErr    error
	wrongDims   bool

	embedCalls int
	batchCalls int
	closed     bool
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) vector(text string) []float32 {
	n := m.dims
	if m.wrongDims {
		n++
	}
	v := make([]float32, n)
	for i, r := range text {
		v[(i+int(r))%m.dims] += float32(r%7) + 1
	}
	return v
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, m.itemErr
	}
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batchCalls++
	fail := m.batchCalls <= m.failBatches
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.failOn != "" && strings.Contains(text, m.failOn) {
			return nil, m.itemErr
		}
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) ModelName() string { return "mock" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }

func (m *mockEmbedder) Close() error {
	m.closed = true
	return nil
}

func (m *mockEmbedder) calls() (embed, batch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls, m.batchCalls
}

// mockGenerator records requests and returns a canned response.
type mockGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	requests []domain.GenerationRequest
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.response, m.err
}

func (m *mockGenerator) ModelName() string { return "mock-llm" }
func (m *mockGenerator) Ping(_ context.Context) error { return nil }
func (m *mockGenerator) Close() error { return nil }

func (m *mockGenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// noSleep skips retry backoff in tests.
func noSleep(context.Context, time.Duration) error { return nil }

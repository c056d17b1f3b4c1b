package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

func glovesIndex() *stubIndex {
	return &stubIndex{hits: []driven.VectorHit{
		hit("sop-014", 0, 0.81, "Operators must wear sterile gloves in grade A areas."),
	}}
}

func TestAnswerService_Ask(t *testing.T) {
	gen := &mockGenerator{response: "  Sterile gloves are required [1].  "}
	svc := NewAnswerService(newTestRetrieval(glovesIndex()), gen)

	answer, err := svc.Ask(context.Background(), "What gloves are required?", domain.RetrievalOptions{})

	require.NoError(t, err)
	assert.Equal(t, "Sterile gloves are required [1].", answer.Text)
	assert.True(t, answer.Sufficient)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "sop-014", answer.Citations[0].DocumentID)

	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, domain.TaskAnswer, req.Task)
	assert.Equal(t, "What gloves are required?", req.Query)
	assert.Contains(t, req.Context.Text, "sterile gloves")
}

func TestAnswerService_NoContextSkipsModel(t *testing.T) {
	gen := &mockGenerator{response: "should not be used"}
	index := &stubIndex{hits: []driven.VectorHit{hit("sop-020", 0, 0.12, "Forklift charging.")}}
	svc := NewAnswerService(newTestRetrieval(index), gen)

	answer, err := svc.Ask(context.Background(), "gloves?", domain.RetrievalOptions{})

	require.NoError(t, err)
	assert.Equal(t, domain.InsufficientInformation, answer.Text)
	assert.False(t, answer.Sufficient)
	assert.Empty(t, answer.Citations)
	assert.Equal(t, 0, gen.calls())
}

func TestAnswerService_DegradedRetrievalReported(t *testing.T) {
	gen := &mockGenerator{}
	index := &stubIndex{err: &domain.IndexError{Op: "search", Err: domain.ErrIndexUnavailable}}
	svc := NewAnswerService(newTestRetrieval(index), gen)

	answer, err := svc.Ask(context.Background(), "gloves?", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.NotNil(t, answer.Failure)
	assert.Equal(t, domain.FailureIndexUnavailable, answer.Failure.Kind)
	assert.Equal(t, domain.InsufficientInformation, answer.Text)
	assert.Equal(t, 0, gen.calls())
}

func TestAnswerService_ModelSaysInsufficient(t *testing.T) {
	gen := &mockGenerator{response: domain.InsufficientInformation}
	svc := NewAnswerService(newTestRetrieval(glovesIndex()), gen)

	answer, err := svc.Ask(context.Background(), "Who audits the warehouse?", domain.RetrievalOptions{})

	require.NoError(t, err)
	assert.False(t, answer.Sufficient)
}

func TestAnswerService_Errors(t *testing.T) {
	t.Run("no generator", func(t *testing.T) {
		svc := NewAnswerService(newTestRetrieval(glovesIndex()), nil)
		_, err := svc.Ask(context.Background(), "gloves?", domain.RetrievalOptions{})
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})

	t.Run("generation fails", func(t *testing.T) {
		boom := errors.New("rate limited")
		svc := NewAnswerService(newTestRetrieval(glovesIndex()), &mockGenerator{err: boom})
		_, err := svc.Ask(context.Background(), "gloves?", domain.RetrievalOptions{})
		assert.ErrorIs(t, err, boom)
	})
}

package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}

	n := Normalize(v)
	assert.InDelta(t, 0.6, n[0], 1e-6)
	assert.InDelta(t, 0.8, n[1], 1e-6)
	assert.Equal(t, []float32{3, 4}, v, "input must not be modified")

	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
}

func TestPrepare(t *testing.T) {
	cos := Prepare([]float32{2, 0}, domain.MetricCosine)
	assert.Equal(t, []float32{1, 0}, cos)

	dot := Prepare([]float32{2, 0}, domain.MetricDot)
	assert.Equal(t, []float32{2, 0}, dot)
	assert.InDelta(t, 1.0, math.Sqrt(Dot(cos, cos)), 1e-6)
}

func TestCheckDimensions(t *testing.T) {
	ok := []domain.VectorRecord{{ID: "a", Vector: []float32{1, 2}}}
	assert.NoError(t, CheckDimensions(ok, 2))

	bad := append(ok, domain.VectorRecord{ID: "b", Vector: []float32{1}})
	err := CheckDimensions(bad, 2)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestCheckDocument(t *testing.T) {
	recs := []domain.VectorRecord{{ID: "a", DocumentID: "doc-1"}, {ID: "b", DocumentID: "doc-2"}}
	assert.NoError(t, CheckDocument(recs[:1], "doc-1"))
	assert.ErrorIs(t, CheckDocument(recs, "doc-1"), domain.ErrInvalidInput)
}

func TestTopK_TieBreaks(t *testing.T) {
	hits := []driven.VectorHit{
		{Record: domain.VectorRecord{ID: "c", Sequence: 2}, Score: 0.5},
		{Record: domain.VectorRecord{ID: "b", Sequence: 1}, Score: 0.5},
		{Record: domain.VectorRecord{ID: "a", Sequence: 1}, Score: 0.5},
		{Record: domain.VectorRecord{ID: "d", Sequence: 9}, Score: 0.9},
	}

	top := TopK(hits, 3)

	require.Len(t, top, 3)
	assert.Equal(t, "d", top[0].Record.ID)
	assert.Equal(t, "a", top[1].Record.ID)
	assert.Equal(t, "b", top[2].Record.ID)
	assert.Empty(t, TopK(nil, 3))
}

package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/postprocessors/chunker"
)

func namedStage(name string) BuilderFunc {
	return func(map[string]any) (driven.PostProcessor, error) {
		return &stubStage{name: name}, nil
	}
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Names())
	assert.False(t, r.Has("upper"))

	r.Register("upper", func(cfg map[string]any) (driven.PostProcessor, error) {
		name, _ := cfg["label"].(string)
		return &stubStage{name: name}, nil
	})
	r.Register("alpha", namedStage("alpha"))

	assert.True(t, r.Has("upper"))
	assert.Equal(t, []string{"alpha", "upper"}, r.Names())

	proc, err := r.Build("upper", map[string]any{"label": "shouty"})
	require.NoError(t, err)
	assert.Equal(t, "shouty", proc.Name())
}

func TestRegistry_Build_Errors(t *testing.T) {
	r := NewRegistry()
	broken := errors.New("chunk_size must be positive")
	r.Register("broken", func(map[string]any) (driven.PostProcessor, error) { return nil, broken })

	_, err := r.Build("stemmer", nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = r.Build("broken", nil)
	assert.ErrorIs(t, err, broken)
	assert.Contains(t, err.Error(), `processor "broken"`)
}

func TestRegistry_BuildPipeline(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	p, err := r.BuildPipeline(domain.DefaultPipelineConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"chunker"}, p.Names())

	chunks, err := p.Process(context.Background(), &domain.Document{ID: "gloves", Content: "Wear gloves."})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestRegistry_BuildPipeline_ReportsEveryUnknownName(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	_, err := r.BuildPipeline(domain.PipelineConfig{Processors: []string{"stemmer", "chunker", "synonyms"}})
	require.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Contains(t, err.Error(), `"stemmer"`)
	assert.Contains(t, err.Error(), `"synonyms"`)
}

func TestBuildChunker(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	tests := []struct {
		name        string
		cfg         map[string]any
		wantSize    int
		wantOverlap int
	}{
		{"fraction", map[string]any{"chunk_size": int64(800), "overlap_fraction": 0.25}, 800, 200},
		{"absolute overlap wins", map[string]any{"chunk_size": 500, "overlap_fraction": 0.2, "overlap": 50}, 500, 50},
		{"empty config", map[string]any{}, chunker.DefaultChunkSize, 100},
		{"nil config", nil, chunker.DefaultChunkSize, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, err := r.Build("chunker", tt.cfg)
			require.NoError(t, err)

			c, ok := proc.(*chunker.Processor)
			require.True(t, ok, "got %T", proc)
			assert.Equal(t, "chunker", c.Name())
			assert.Equal(t, tt.wantSize, c.ChunkSize())
			assert.Equal(t, tt.wantOverlap, c.Overlap())
		})
	}
}

func TestBuildChunker_RejectsInvalidOverlap(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	for name, cfg := range map[string]map[string]any{
		"overlap equals size":  {"chunk_size": 100, "overlap": 100},
		"overlap exceeds size": {"chunk_size": 100, "overlap": 250},
		"fraction of one":      {"chunk_size": 100, "overlap_fraction": 1.0},
		"zero size":            {"chunk_size": 0},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Build("chunker", cfg)

			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Field, "chunker.")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestConfigNumbers(t *testing.T) {
	cfg := map[string]any{
		"int":    100,
		"int64":  int64(200),
		"float":  float64(300),
		"string": "400",
	}

	assert.Equal(t, 100, getIntFromConfig(cfg, "int"))
	assert.Equal(t, 200, getIntFromConfig(cfg, "int64"))
	assert.Equal(t, 300, getIntFromConfig(cfg, "float"))
	assert.Zero(t, getIntFromConfig(cfg, "string"))
	assert.Zero(t, getIntFromConfig(cfg, "missing"))
	assert.Zero(t, getIntFromConfig(nil, "int"))

	f, ok := getFloatFromConfig(map[string]any{"f": 0.5}, "f")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, f, 1e-9)

	f, ok = getFloatFromConfig(map[string]any{"f": int64(1)}, "f")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, f, 1e-9)

	_, ok = getFloatFromConfig(map[string]any{"f": "x"}, "f")
	assert.False(t, ok)
	_, ok = getFloatFromConfig(nil, "f")
	assert.False(t, ok)
}

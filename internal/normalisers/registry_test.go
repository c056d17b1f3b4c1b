package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

type stubExtractor struct {
	name     string
	priority int
}

func (s *stubExtractor) Name() string { return s.name }
func (s *stubExtractor) Extensions() []string { return []string{".TXT"} }
func (s *stubExtractor) Priority() int { return s.priority }
func (s *stubExtractor) Extract(_ context.Context, _ string, content []byte) (*driven.Extraction, error) {
	return &driven.Extraction{Text: s.name + ":" + string(content)}, nil
}

func TestDefaultRegistry_Extensions(t *testing.T) {
	r := DefaultRegistry()
	exts := r.Extensions()

	for _, ext := range []string{".txt", ".md", ".html", ".docx", ".pdf"} {
		assert.Contains(t, exts, ext)
	}
	assert.True(t, r.Supports("SOP-001.PDF"))
	assert.False(t, r.Supports("image.png"))
}

func TestRegistry_ForUnknown(t *testing.T) {
	_, err := DefaultRegistry().For("archive.zip")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestRegistry_PriorityWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExtractor{name: "low", priority: 1})
	r.Register(&stubExtractor{name: "high", priority: 10})
	r.Register(&stubExtractor{name: "mid", priority: 5})

	e, err := r.For("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "high", e.Name())
}

func TestRegistry_Extract(t *testing.T) {
	r := DefaultRegistry()

	out, err := r.Extract(context.Background(), "gowning.md", []byte("# Gowning\n\nPut on the **hood** first."))

	require.NoError(t, err)
	assert.Equal(t, "Gowning", out.Title)
	assert.Contains(t, out.Text, "Put on the hood first.")
	assert.Equal(t, "markdown", out.Metadata["extractor"])
}

func TestRegistry_ExtractWrapsError(t *testing.T) {
	_, err := DefaultRegistry().Extract(context.Background(), "bad.docx", []byte("nope"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "docx extractor")
}

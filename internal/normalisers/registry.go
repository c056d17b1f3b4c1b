package normalisers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/normalisers/docx"
	"github.com/custodia-labs/sopctx/internal/normalisers/html"
	"github.com/custodia-labs/sopctx/internal/normalisers/markdown"
	"github.com/custodia-labs/sopctx/internal/normalisers/pdf"
	"github.com/custodia-labs/sopctx/internal/normalisers/plaintext"
)

// Registry maps file extensions to text extractors.
type Registry struct {
	byExt map[string][]driven.TextExtractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string][]driven.TextExtractor)}
}

// DefaultRegistry returns a registry with every built-in extractor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
	r.Register(pdf.New())
	return r
}

// Register adds an extractor for each of its extensions.
func (r *Registry) Register(e driven.TextExtractor) {
	for _, ext := range e.Extensions() {
		ext = strings.ToLower(ext)
		list := append(r.byExt[ext], e)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byExt[ext] = list
	}
}

// For returns the highest priority extractor for filename.
func (r *Registry) For(filename string) (driven.TextExtractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	list := r.byExt[ext]
	if len(list) == 0 {
		return nil, fmt.Errorf("no extractor for %q: %w", filename, domain.ErrUnsupportedType)
	}
	return list[0], nil
}

// Supports returns true if some extractor handles filename.
func (r *Registry) Supports(filename string) bool {
	_, err := r.For(filename)
	return err == nil
}

// Extract converts content using the extractor selected for filename.
func (r *Registry) Extract(ctx context.Context, filename string, content []byte) (*driven.Extraction, error) {
	e, err := r.For(filename)
	if err != nil {
		return nil, err
	}
	out, err := e.Extract(ctx, filename, content)
	if err != nil {
		return nil, fmt.Errorf("%s extractor: %w", e.Name(), err)
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata["extractor"] = e.Name()
	return out, nil
}

// Extensions returns all registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

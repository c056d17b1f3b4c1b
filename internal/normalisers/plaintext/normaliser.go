// Package plaintext extracts text files as-is.
package plaintext

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the extractor name.
func (n *Normaliser) Name() string {
	return "plaintext"
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".txt", ".text", ".log", ".csv"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Extract returns the content unchanged apart from a leading BOM and
// Windows line endings. Invalid UTF-8 is rejected.
func (n *Normaliser) Extract(_ context.Context, filename string, content []byte) (*driven.Extraction, error) {
	if !utf8.Valid(content) {
		return nil, domain.ErrInvalidInput
	}

	text := strings.TrimPrefix(string(content), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	return &driven.Extraction{
		Title:    TitleFromFilename(filename),
		Text:     text,
		Metadata: map[string]any{"format": "text"},
	}, nil
}

// TitleFromFilename derives a human-readable title from a file name.
func TitleFromFilename(filename string) string {
	name := filepath.Base(filename)

	// Remove common extensions for cleaner title
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}

	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// Package pdf extracts text from PDF procedures with github.com/ledongthuc/pdf.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/normalisers/plaintext"
)

// maxTitleLen bounds how long a first line may be and still serve as a title.
const maxTitleLen = 120

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles PDF documents.
type Normaliser struct{}

// New creates a new PDF normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the extractor name.
func (n *Normaliser) Name() string {
	return "pdf"
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Extract reads the plain text of every page.
// The parser panics on some malformed files; that is reported as invalid input.
func (n *Normaliser) Extract(_ context.Context, filename string, content []byte) (ext *driven.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext = nil
			err = fmt.Errorf("pdf: unreadable file %s: %w", filename, domain.ErrInvalidInput)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("pdf: open %s: %v: %w", filename, err, domain.ErrInvalidInput)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("pdf: read text of %s: %v: %w", filename, err, domain.ErrInvalidInput)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, fmt.Errorf("pdf: read text of %s: %w", filename, err)
	}

	text := cleanText(buf.String())

	return &driven.Extraction{
		Title: pdfTitle(text, filename),
		Text:  text,
		Metadata: map[string]any{
			"format": "pdf",
			"pages":  reader.NumPage(),
		},
	}, nil
}

// cleanText trims trailing spaces per line and drops runs of blank lines.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// pdfTitle uses the first line when it is short enough, otherwise the filename.
func pdfTitle(text, filename string) string {
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if first != "" && len([]rune(first)) <= maxTitleLen {
		return first
	}
	return plaintext.TitleFromFilename(filename)
}

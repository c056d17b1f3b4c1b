package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

func TestNormaliser_Metadata(t *testing.T) {
	n := New()
	assert.Equal(t, "markdown", n.Name())
	assert.Equal(t, []string{".md", ".markdown"}, n.Extensions())
	assert.Equal(t, 50, n.Priority())
}

func TestExtract_Success(t *testing.T) {
	content := "# SOP-021 Line Clearance\r\n\r\nRemove **all** materials from the [line](http://x).\r\n"

	got, err := New().Extract(context.Background(), "sop-021.md", []byte(content))

	require.NoError(t, err)
	assert.Equal(t, "SOP-021 Line Clearance", got.Title)
	assert.Equal(t, "SOP-021 Line Clearance\n\nRemove all materials from the line.", got.Text)
	assert.Equal(t, "markdown", got.Metadata["format"])
}

func TestExtract_NilContent(t *testing.T) {
	_, err := New().Extract(context.Background(), "x.md", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExtract_TitleFallback(t *testing.T) {
	got, err := New().Extract(context.Background(), "/docs/hand_washing.md", []byte("## Steps\nWash."))
	require.NoError(t, err)
	assert.Equal(t, "hand washing", got.Title)
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"headings", "## Scope\ntext", "Scope\ntext"},
		{"bullets", "- one\n* two\n+ three", "one\ntwo\nthree"},
		{"numbered steps kept", "1. Gown\n2. Enter", "1. Gown\n2. Enter"},
		{"emphasis", "Do *not* touch __sterile__ areas", "Do not touch sterile areas"},
		{"identifiers keep underscores", "See SOP_014 and batch_id", "See SOP_014 and batch_id"},
		{"inline code", "Set `temp=5`", "Set temp=5"},
		{"fenced code keeps body", "```\nstep a\n```", "step a"},
		{"image removed", "![logo](a.png)Text", "Text"},
		{"blockquote", "> Note: wear gloves", "Note: wear gloves"},
		{"horizontal rule", "a\n---\nb", "a\n\nb"},
		{"table", "| Step | Action |\n|---|---|\n| 1 | Wipe |", "Step | Action\n\n1 | Wipe"},
		{"collapse newlines", "a\n\n\n\nb", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdown(tt.in))
		})
	}
}

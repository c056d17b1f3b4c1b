package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

func TestNormaliser_Metadata(t *testing.T) {
	n := New()
	assert.Equal(t, "plaintext", n.Name())
	assert.Contains(t, n.Extensions(), ".txt")
	assert.Equal(t, 5, n.Priority())
}

func TestExtract_Success(t *testing.T) {
	got, err := New().Extract(context.Background(), "/sops/SOP-014_cold-chain.txt",
		[]byte("\ufeffStore at 2-8C.\r\nLog hourly."))

	require.NoError(t, err)
	assert.Equal(t, "SOP 014 cold chain", got.Title)
	assert.Equal(t, "Store at 2-8C.\nLog hourly.", got.Text)
	assert.Equal(t, "text", got.Metadata["format"])
}

func TestExtract_InvalidUTF8(t *testing.T) {
	_, err := New().Extract(context.Background(), "bad.txt", []byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExtract_Empty(t *testing.T) {
	got, err := New().Extract(context.Background(), "empty.txt", nil)
	require.NoError(t, err)
	assert.Empty(t, got.Text)
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/path/to/gowning_procedure.txt", "gowning procedure"},
		{"line-clearance.md", "line clearance"},
		{"README", "README"},
		{"archive.tar.gz", "archive.tar"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromFilename(tt.in))
		})
	}
}

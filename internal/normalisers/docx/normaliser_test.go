package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

// createTestDOCX creates a minimal DOCX archive in memory.
func createTestDOCX(t *testing.T, documentXML, coreXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	write := func(name, body string) {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}

	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types/>`)
	if documentXML != "" {
		write("word/document.xml", documentXML)
	}
	if coreXML != "" {
		write("docProps/core.xml", coreXML)
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestNormaliser_Metadata(t *testing.T) {
	n := New()
	assert.Equal(t, "docx", n.Name())
	assert.Equal(t, []string{".docx"}, n.Extensions())
	assert.Equal(t, 50, n.Priority())
}

func TestExtract_ParagraphsAndTitle(t *testing.T) {
	doc := `<w:document ` + wordNS + `><w:body>
<w:p><w:r><w:t>Purpose</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Clean the </w:t></w:r><w:r><w:t>filling line.</w:t></w:r></w:p>
</w:body></w:document>`
	core := `<cp:coreProperties xmlns:cp="x" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>SOP-040 Line Cleaning</dc:title></cp:coreProperties>`

	got, err := New().Extract(context.Background(), "sop-040.docx", createTestDOCX(t, doc, core))

	require.NoError(t, err)
	assert.Equal(t, "SOP-040 Line Cleaning", got.Title)
	assert.Equal(t, "Purpose\nClean the filling line.", got.Text)
	assert.Equal(t, "docx", got.Metadata["format"])
}

func TestExtract_TableCells(t *testing.T) {
	doc := `<w:document ` + wordNS + `><w:body><w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Step</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Action</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl><w:p><w:r><w:t>Done</w:t><w:tab/><w:t>signed</w:t></w:r></w:p></w:body></w:document>`

	got, err := New().Extract(context.Background(), "table.docx", createTestDOCX(t, doc, ""))

	require.NoError(t, err)
	assert.Equal(t, "Step\nAction\nDone signed", got.Text)
	assert.Equal(t, "table", got.Title)
}

func TestExtract_InvalidZip(t *testing.T) {
	_, err := New().Extract(context.Background(), "bad.docx", []byte("not a zip"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExtract_MissingDocumentPart(t *testing.T) {
	_, err := New().Extract(context.Background(), "empty.docx", createTestDOCX(t, "", ""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExtract_MalformedXML(t *testing.T) {
	_, err := New().Extract(context.Background(), "bad.docx", createTestDOCX(t, "<w:document><w:body>", ""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
)

func writeSOPs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"sop-014.md":        "# Gowning\n\nSterile gloves must be changed every 30 minutes.",
		"sop-020.txt":       "Clean the isolator with 70% IPA before each batch.",
		"nested/sop-031.md": "# Filling\n\nCheck fill weights every 15 minutes.",
		"photo.png":         "not text",
		".draft.txt":        "hidden",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestIngestCmd_RequiresArgs(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestIngestCmd_HasFlags(t *testing.T) {
	watch := ingestCmd.Flags().Lookup("watch")
	require.NotNil(t, watch)
	assert.Equal(t, "w", watch.Shorthand)
	assert.NotNil(t, ingestCmd.Flags().Lookup("json"))
}

func TestIngestCmd_IngestsSupportedFiles(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	dir := writeSOPs(t)

	out, err := execute(t, "ingest", dir)

	require.NoError(t, err)
	require.Len(t, ts.ingest.requests, 3)

	names := []string{ts.ingest.requests[0].Filename, ts.ingest.requests[1].Filename, ts.ingest.requests[2].Filename}
	assert.Equal(t, []string{"sop-031.md", "sop-014.md", "sop-020.txt"}, names)

	req := ts.ingest.requests[1]
	assert.Empty(t, req.ID, "ID is derived from the filename by the service")
	assert.Contains(t, req.Content, "Sterile gloves")
	assert.Equal(t, filepath.Join(dir, "sop-014.md"), req.Metadata["path"])
	assert.NotEmpty(t, req.Metadata["extractor"])

	assert.Contains(t, out, "OK   sop-014.md")
	assert.Contains(t, out, "Ingested 3 of 3 file(s)")
}

func TestIngestCmd_SingleFile(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	dir := writeSOPs(t)

	_, err := execute(t, "ingest", filepath.Join(dir, "sop-020.txt"))

	require.NoError(t, err)
	require.Len(t, ts.ingest.requests, 1)
	assert.Equal(t, "sop-020.txt", ts.ingest.requests[0].Filename)
}

func TestIngestCmd_ReportsFailures(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.ingest.failOn = "IPA"

	dir := writeSOPs(t)

	out, err := execute(t, "ingest", dir)

	require.Error(t, err)
	assert.Contains(t, out, "FAIL sop-020.txt")
	assert.Contains(t, out, "Ingested 2 of 3 file(s)")
}

func TestIngestCmd_JSONOutput(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	dir := writeSOPs(t)

	out, err := execute(t, "ingest", "--json", filepath.Join(dir, "sop-014.md"))

	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "sop-014.md", rows[0]["filename"])
	assert.Equal(t, "doc-sop-014.md", rows[0]["document_id"])
}

func TestIngestCmd_MissingPath(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "finding files")
}

func TestIngestCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	ingestService = nil

	_, err := execute(t, "ingest", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest service not configured")
}

func TestIngestFiles_UnreadableFileKeepsPosition(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	dir := writeSOPs(t)
	files := []string{
		filepath.Join(dir, "sop-014.md"),
		filepath.Join(dir, "gone.txt"),
		filepath.Join(dir, "sop-020.txt"),
	}

	results := ingestFiles(context.Background(), files)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "gone.txt", results[1].Filename)
	assert.Equal(t, "sop-020.txt", results[2].Filename)
	assert.Len(t, ts.ingest.requests, 2)
}

func TestDeleteCmd(t *testing.T) {
	t.Run("deletes document", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		out, err := execute(t, "delete", "doc-1")

		require.NoError(t, err)
		assert.Equal(t, []string{"doc-1"}, ts.ingest.deleted)
		assert.Contains(t, out, "Deleted document doc-1")
	})

	t.Run("service error", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		ts.ingest.err = domain.ErrNotFound

		_, err := execute(t, "delete", "doc-9")

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("requires exactly one arg", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		_, err := execute(t, "delete")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg(s)")
	})
}

func TestReindexCmd(t *testing.T) {
	t.Run("prints results", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		ts.ingest.reindexed = []driving.IngestResult{
			{DocumentID: "doc-1", Filename: "sop-014.md", Chunks: 3, Replaced: true},
		}

		out, err := execute(t, "reindex")

		require.NoError(t, err)
		assert.Contains(t, out, "sop-014.md (3 chunks, replaced)")
	})

	t.Run("empty corpus", func(t *testing.T) {
		_, cleanup := setupTestServices()
		defer cleanup()

		out, err := execute(t, "reindex")

		require.NoError(t, err)
		assert.Contains(t, out, "No documents to reindex.")
	})

	t.Run("failed document", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		ts.ingest.reindexed = []driving.IngestResult{
			{Filename: "sop-014.md", Err: errors.New("embedding failed")},
		}

		_, err := execute(t, "reindex")

		assert.Error(t, err)
	})
}

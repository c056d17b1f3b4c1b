package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

func saveDoc(t *testing.T, store *DocumentStore, id, filename string) {
	t.Helper()
	require.NoError(t, store.SaveDocument(context.Background(), &domain.Document{
		ID:         id,
		Filename:   filename,
		Content:    "Sterilise the bench before use.",
		UploadedAt: time.Now(),
		Metadata:   map[string]any{"site": "lab-2"},
	}))
}

func TestDocumentStore_SaveAndGet(t *testing.T) {
	store := NewDocumentStore()
	saveDoc(t, store, "doc-1", "bench.txt")

	got, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "bench.txt", got.Filename)
	assert.Equal(t, "lab-2", got.Metadata["site"])

	_, err = store.GetDocument(context.Background(), "doc-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveRejectsEmptyID(t *testing.T) {
	err := NewDocumentStore().SaveDocument(context.Background(), &domain.Document{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_SaveChunks(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	saveDoc(t, store, "doc-1", "a.txt")
	saveDoc(t, store, "doc-2", "b.txt")

	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Sequence: 1, Content: "second"},
		{ID: "c0", DocumentID: "doc-1", Sequence: 0, Content: "first"},
		{ID: "d0", DocumentID: "doc-2", Sequence: 0, Content: "other"},
	}))

	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first", chunks[0].Content)

	chunk, err := store.GetChunk(ctx, "d0")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", chunk.DocumentID)

	// A second save replaces rather than appends.
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: "c0", DocumentID: "doc-1", Sequence: 0, Content: "only"},
	}))
	chunks, err = store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "only", chunks[0].Content)
}

func TestDocumentStore_SaveChunksRequiresDocument(t *testing.T) {
	store := NewDocumentStore()
	err := store.SaveChunks(context.Background(), []domain.Chunk{{ID: "x", DocumentID: "ghost"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_GetChunksReturnsCopy(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	saveDoc(t, store, "doc-1", "a.txt")
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{{ID: "c0", DocumentID: "doc-1", Content: "x"}}))

	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	chunks[0].Content = "mutated"

	again, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "x", again[0].Content)
}

func TestDocumentStore_Delete(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	saveDoc(t, store, "doc-1", "a.txt")
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{{ID: "c0", DocumentID: "doc-1"}}))

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))
	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.ErrorIs(t, store.DeleteDocument(ctx, "doc-1"), domain.ErrNotFound)
}

func TestDocumentStore_ListOrderedByFilename(t *testing.T) {
	store := NewDocumentStore()
	saveDoc(t, store, "doc-3", "zeta.txt")
	saveDoc(t, store, "doc-1", "alpha.txt")
	saveDoc(t, store, "doc-2", "mid.txt")

	docs, err := store.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"alpha.txt", "mid.txt", "zeta.txt"},
		[]string{docs[0].Filename, docs[1].Filename, docs[2].Filename})
}

func TestDocumentStore_ConcurrentAccess(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SaveDocument(ctx, &domain.Document{ID: "shared", Filename: "s.txt"})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.ListDocuments(ctx)
		}()
	}
	wg.Wait()

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDeviationStore_ListWindowNewestFirst(t *testing.T) {
	store := NewDeviationStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, days := range []int{0, 5, 40} {
		require.NoError(t, store.SaveDeviation(ctx, &domain.DeviationRecord{
			ID:         string(rune('a' + i)),
			Severity:   domain.SeverityMinor,
			Category:   "documentation",
			OccurredAt: now.AddDate(0, 0, -days),
		}))
	}

	got, err := store.ListDeviations(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	all, err := store.ListDeviations(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeviationStore_SaveRejectsEmptyID(t *testing.T) {
	err := NewDeviationStore().SaveDeviation(context.Background(), &domain.DeviationRecord{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

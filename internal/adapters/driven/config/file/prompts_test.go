package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
)

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".sopctx", "prompts"), store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptAnswer)
	require.NoError(t, err)
	assert.Contains(t, prompt, domain.InsufficientInformation)

	for _, name := range []string{driven.PromptAnswer, driven.PromptDeviationAnalysis, driven.PromptRetraining} {
		_, err := os.Stat(filepath.Join(dir, name+".txt"))
		assert.NoError(t, err, name)
	}
}

func TestPromptStore_DefaultsHaveTwoPlaceholders(t *testing.T) {
	for _, name := range []string{driven.PromptAnswer, driven.PromptDeviationAnalysis, driven.PromptRetraining} {
		p, ok := DefaultPrompt(name)
		require.True(t, ok, name)
		assert.Equal(t, 2, placeholders(p), name)

		rendered := fmt.Sprintf(p, "[1] a.txt (chunk 0)\nwear gloves", "what to wear?")
		assert.NotContains(t, rendered, "%!", name)
	}
}

func TestPromptStore_UserEditWins(t *testing.T) {
	dir := t.TempDir()
	custom := "Context:\n%s\nQ: %s"
	require.NoError(t, os.WriteFile(filepath.Join(dir, driven.PromptAnswer+".txt"), []byte(custom+"\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	got, err := store.Load(driven.PromptAnswer)
	require.NoError(t, err)
	assert.Equal(t, custom, got)
}

func TestPromptStore_BrokenEditFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, driven.PromptAnswer+".txt"), []byte("no placeholders"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	got, err := store.Load(driven.PromptAnswer)
	require.NoError(t, err)
	def, _ := DefaultPrompt(driven.PromptAnswer)
	assert.Equal(t, def, got)
}

func TestPromptStore_Reload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptAnswer)
	require.NoError(t, err)

	edited := "%s then %s"
	require.NoError(t, os.WriteFile(filepath.Join(dir, driven.PromptAnswer+".txt"), []byte(edited), 0600))

	cached, err := store.Load(driven.PromptAnswer)
	require.NoError(t, err)
	assert.NotEqual(t, edited, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptAnswer)
	require.NoError(t, err)
	assert.Equal(t, edited, fresh)
}

func TestPromptStore_SeedingKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	custom := "Incident %s against %s"
	target := filepath.Join(dir, driven.PromptDeviationAnalysis+".txt")
	require.NoError(t, os.WriteFile(target, []byte(custom), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, err = store.Load(driven.PromptAnswer)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))

	seeded, err := os.ReadFile(filepath.Join(dir, driven.PromptAnswer+".txt"))
	require.NoError(t, err)
	def, _ := DefaultPrompt(driven.PromptAnswer)
	assert.Equal(t, def, strings.TrimSpace(string(seeded)))
}

func TestPromptStore_UnwritableDirUsesBuiltins(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	store, err := NewPromptStore(filepath.Join(blocker, "prompts"))
	require.NoError(t, err)

	got, err := store.Load(driven.PromptDeviationAnalysis)
	require.NoError(t, err)
	def, _ := DefaultPrompt(driven.PromptDeviationAnalysis)
	assert.Equal(t, def, got)

	_, err = store.Load("missing")
	assert.Error(t, err)
}

func TestPromptStore_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("missing")
	assert.Error(t, err)
}

func TestPromptStore_ConcurrentLoad(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = store.Load(driven.PromptDeviationAnalysis)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, strings.Contains(r, "is_deviation"))
	}
}

package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

//go:embed prompts/*.txt
var builtinPrompts embed.FS

const promptExt = ".txt"

// DefaultPrompt returns the built-in template for name.
func DefaultPrompt(name string) (string, bool) {
	data, err := builtinPrompts.ReadFile(path.Join("prompts", name+promptExt))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// PromptStore serves generation templates from <dir>/<name>.txt so operators
// can tune wording without a rebuild. The first Load copies any missing
// built-in template into dir. An unreadable file, or one whose %s count
// differs from the built-in, falls back to the built-in with a warning.
type PromptStore struct {
	dir string

	seed    sync.Once
	seedErr error

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore returns a store rooted at dir, or ~/.sopctx/prompts when
// dir is empty. Nothing is written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".sopctx", "prompts")
	}
	return &PromptStore{dir: dir, cache: map[string]string{}}, nil
}

// Dir returns the directory templates are read from.
func (s *PromptStore) Dir() string { return s.dir }

// Load implements driven.PromptStore.
func (s *PromptStore) Load(name string) (string, error) {
	s.seed.Do(func() { s.seedErr = s.writeDefaults() })

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	def, hasDefault := DefaultPrompt(name)
	prompt, err := s.readUserPrompt(name, def, hasDefault)
	switch {
	case err == nil:
	case hasDefault:
		if s.seedErr == nil || !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("prompt %q: %v; using built-in", name, err)
		}
		prompt = def
	default:
		return "", fmt.Errorf("load prompt %q: %w", name, errors.Join(err, s.seedErr))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[name]; ok {
		return cached, nil
	}
	s.cache[name] = prompt
	return prompt, nil
}

// Reload implements driven.PromptStore.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = map[string]string{}
	s.mu.Unlock()
}

func (s *PromptStore) readUserPrompt(name, def string, hasDefault bool) (string, error) {
	p := filepath.Join(s.dir, name+promptExt)
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if hasDefault {
		if got, want := placeholders(prompt), placeholders(def); got != want {
			return "", fmt.Errorf("%s has %d %%s placeholders, want %d", p, got, want)
		}
	}
	return prompt, nil
}

// writeDefaults copies built-in templates into dir without touching files
// that already exist.
func (s *PromptStore) writeDefaults() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}
	names, err := fs.Glob(builtinPrompts, "prompts/*"+promptExt)
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := builtinPrompts.ReadFile(name)
		if err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(s.dir, path.Base(name)), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write default prompt: %w", err)
		}
		_, werr := f.Write(data)
		if err := errors.Join(werr, f.Close()); err != nil {
			return fmt.Errorf("write default prompt: %w", err)
		}
	}
	return nil
}

func placeholders(s string) int {
	return strings.Count(s, "%s")
}

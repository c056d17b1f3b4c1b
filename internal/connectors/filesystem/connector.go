// Package filesystem finds procedure files on disk and watches directories
// so edited files can be re-ingested.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sopctx/internal/logger"
)

// DefaultDebounce is how long a path must be quiet before its change is emitted.
const DefaultDebounce = 300 * time.Millisecond

// ChangeType describes what happened to a file.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change is a settled change to one file.
type Change struct {
	Path string
	Type ChangeType
}

// Connector walks and watches a set of files and directories.
type Connector struct {
	roots    []string
	accept   func(path string) bool
	debounce time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	inflight sync.WaitGroup
	closed   bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithFilter restricts the connector to paths accept returns true for.
func WithFilter(accept func(path string) bool) Option {
	return func(c *Connector) {
		if accept != nil {
			c.accept = accept
		}
	}
}

// WithDebounce sets the quiet period before a change is emitted.
func WithDebounce(d time.Duration) Option {
	return func(c *Connector) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// New creates a connector over roots, which may be files or directories.
func New(roots []string, opts ...Option) *Connector {
	c := &Connector{
		roots:    roots,
		accept:   func(string) bool { return true },
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "filesystem"
}

// Files returns every accepted, non-hidden file under the roots, sorted.
// A root that is a file is returned if accepted, even when hidden.
func (c *Connector) Files(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range c.roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if c.accept(root) {
				add(root)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("filesystem: skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if path != root && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if c.accept(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

// Watch emits settled changes to accepted files under the root directories
// until ctx is cancelled or Close is called. Directories created later are
// watched too. The channel is closed when watching stops.
func (c *Connector) Watch(ctx context.Context) (<-chan Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("filesystem: connector closed")
	}
	if c.watcher != nil {
		return nil, errors.New("filesystem: already watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	for _, root := range c.roots {
		info, err := os.Stat(root)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		dir := root
		if !info.IsDir() {
			dir = filepath.Dir(root)
		}
		if err := addTree(watcher, dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	c.watcher = watcher

	out := make(chan Change, 64)
	go c.loop(ctx, watcher, out)
	return out, nil
}

func (c *Connector) loop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- Change) {
	defer func() {
		c.stopPending()
		c.inflight.Wait()
		close(out)
	}()

	emit := func(change Change) {
		c.schedule(change.Path, func() {
			select {
			case out <- change:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(filepath.Base(event.Name)) {
					if err := addTree(watcher, event.Name); err != nil {
						logger.Warn("filesystem: watching %s: %v", event.Name, err)
					}
					continue
				}
			}
			if change := c.handleFsEvent(event); change != nil {
				emit(*change)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem: watch error: %v", err)
		}
	}
}

// schedule runs fire once path has been quiet for the debounce period.
// The latest event for a path wins.
func (c *Connector) schedule(path string, fire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[path]; ok && prev.Stop() {
		c.inflight.Done()
	}
	c.inflight.Add(1)
	var t *time.Timer
	t = time.AfterFunc(c.debounce, func() {
		defer c.inflight.Done()
		c.mu.Lock()
		if c.pending[path] == t {
			delete(c.pending, path)
		}
		c.mu.Unlock()
		fire()
	})
	c.pending[path] = t
}

func (c *Connector) stopPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, t := range c.pending {
		if t.Stop() {
			c.inflight.Done()
		}
		delete(c.pending, path)
	}
}

// handleFsEvent maps a raw event to a change, or nil if it is not relevant.
func (c *Connector) handleFsEvent(event fsnotify.Event) *Change {
	if isHidden(event.Name) || !c.accept(event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &Change{Path: event.Name, Type: ChangeDeleted}
	case event.Has(fsnotify.Create):
		if !isRegularFile(event.Name) {
			return nil
		}
		return &Change{Path: event.Name, Type: ChangeCreated}
	case event.Has(fsnotify.Write):
		if !isRegularFile(event.Name) {
			return nil
		}
		return &Change{Path: event.Name, Type: ChangeUpdated}
	default:
		return nil
	}
}

// Close stops watching.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// addTree watches dir and every non-hidden directory below it.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

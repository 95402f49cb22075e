package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultDebounce is the interval collapsed file events wait before a file
// is re-ingested.
const DefaultDebounce = 500 * time.Millisecond

type patternMatcher struct {
	globs []glob.Glob
}

func newPatternMatcher(patterns []string) (*patternMatcher, error) {
	if len(patterns) == 0 {
		patterns = []string{"*.yaml", "*.yml", "*.json"}
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ingest pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return &patternMatcher{globs: globs}, nil
}

func (m *patternMatcher) matches(name string) bool {
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Watcher ingests knowledge files as they appear or change in a directory.
// It lives outside the hot optimize path; ingestion errors are logged and do
// not stop the watch loop.
type Watcher struct {
	index    *Index
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	matcher *patternMatcher
}

func NewWatcher(index *Index, dir string, patterns []string) (*Watcher, error) {
	matcher, err := newPatternMatcher(patterns)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		index:    index,
		dir:      dir,
		matcher:  matcher,
		debounce: DefaultDebounce,
	}, nil
}

// SetPatterns swaps the file patterns of a running watcher. Invalid patterns
// leave the current set in place.
func (w *Watcher) SetPatterns(patterns []string) error {
	matcher, err := newPatternMatcher(patterns)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.matcher = matcher
	w.mu.Unlock()
	return nil
}

func (w *Watcher) matches(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.matcher.matches(name)
}

// Run blocks until ctx is cancelled, ingesting matching files on write or
// create events. Rapid event bursts for the same file collapse into one
// ingest per debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	slog.Info("watching knowledge directory", slog.String("dir", w.dir))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.matches(filepath.Base(event.Name)) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("knowledge watcher error", slog.String("error", err.Error()))

		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(pending, path)
				if _, err := w.index.IngestFile(ctx, path); err != nil {
					slog.Warn("ingest failed",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Package watcher feeds file changes under a project into a running session.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vibesrails/internal/metrics"
	"vibesrails/internal/paths"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Event is one change to a file, with Path relative to the project root.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// ChangeHandler receives the distinct relative paths of one debounced batch.
type ChangeHandler func(ctx context.Context, files []string)

// Config contains watcher configuration
type Config struct {
	DebounceMs     int
	IgnorePatterns []string
	SkipDirs       []string
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		DebounceMs:     750,
		IgnorePatterns: []string{"*.log", "*.tmp", "*.swp", "*~"},
		SkipDirs:       metrics.DefaultSkipDirs,
	}
}

// Watcher watches a project tree recursively.
type Watcher struct {
	config  Config
	logger  *slog.Logger
	handler ChangeHandler
	root    string
	skip    map[string]bool

	fs    *fsnotify.Watcher
	batch *BatchDebouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	dirs   int
}

// New creates a watcher for root. Nothing is watched until Start.
func New(root string, config Config, logger *slog.Logger, handler ChangeHandler) (*Watcher, error) {
	canonical, err := paths.CanonicalizeProject(root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.DebounceMs <= 0 {
		config.DebounceMs = DefaultConfig().DebounceMs
	}
	if config.SkipDirs == nil {
		config.SkipDirs = metrics.DefaultSkipDirs
	}

	w := &Watcher{
		config:  config,
		logger:  logger,
		handler: handler,
		root:    canonical,
		skip:    make(map[string]bool, len(config.SkipDirs)),
	}
	for _, d := range config.SkipDirs {
		w.skip[d] = true
	}
	w.batch = NewBatchDebouncer(time.Duration(config.DebounceMs)*time.Millisecond, w.emit)
	return w, nil
}

// Root returns the canonical project root.
func (w *Watcher) Root() string {
	return w.root
}

// Start adds the project tree to the watch list and begins delivering batches.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fs = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)

	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return err
	}

	w.logger.Info("Watching project", "root", w.root, "dirs", w.WatchedDirs(), "debounceMs", w.config.DebounceMs)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops watching and delivers any pending batch.
func (w *Watcher) Stop() error {
	if w.fs == nil {
		return nil
	}
	err := w.fs.Close()
	w.wg.Wait()
	w.batch.Flush()
	w.cancel()
	w.logger.Info("Stopped watching project", "root", w.root)
	return err
}

// WatchedDirs returns how many directories are being watched.
func (w *Watcher) WatchedDirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Debug("Cannot watch directory", "path", path, "error", err)
			return nil
		}
		w.mu.Lock()
		w.dirs++
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || w.skip[name]
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.skipDir(info.Name()) {
			_ = w.addTree(event.Name)
		}
		return
	}

	rel, err := paths.RelativeTo(w.root, event.Name)
	if err != nil || w.IsIgnored(rel) {
		return
	}

	typ := EventModify
	if event.Op&fsnotify.Create != 0 {
		typ = EventCreate
	}
	w.batch.Add(Event{Type: typ, Path: rel, Timestamp: time.Now()})
}

// IsIgnored reports whether a relative path matches an ignore pattern or lies
// under a skipped directory.
func (w *Watcher) IsIgnored(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if w.skipDir(dir) {
			return true
		}
	}
	base := parts[len(parts)-1]
	for _, pattern := range w.config.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// emit hands the distinct paths of a batch to the handler.
func (w *Watcher) emit(events []Event) {
	seen := make(map[string]bool, len(events))
	files := make([]string, 0, len(events))
	for _, e := range events {
		if !seen[e.Path] {
			seen[e.Path] = true
			files = append(files, e.Path)
		}
	}
	sort.Strings(files)

	w.logger.Debug("File changes detected", "root", w.root, "events", len(events), "files", len(files))
	if w.handler != nil {
		// The final batch is flushed during shutdown, after the caller's
		// context may already be done.
		w.handler(context.WithoutCancel(w.ctx), files)
	}
}

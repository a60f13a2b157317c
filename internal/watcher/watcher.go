// Package watcher observes the project tree, drops stale cache entries as soon
// as a change is seen and batches the changed web paths into one notification
// per debounce window.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the batching window used when Config.Debounce is zero.
const DefaultDebounce = 60 * time.Millisecond

// Invalidator drops cached content for a module id.
type Invalidator interface {
	Invalidate(id string)
}

// ChangeObserver is told about every change before the cache is invalidated.
type ChangeObserver interface {
	WatchChange(ctx context.Context, absPath string)
}

// FileFilter determines if a path should be reported
type FileFilter func(path string) bool

// Config describes what a FileWatcher observes.
type Config struct {
	Root     string
	Manifest string
	// Exclude lists absolute directories that are never watched.
	Exclude []string
	// Ignore lists base-name glob patterns for files that are never reported.
	Ignore   []string
	Debounce time.Duration
}

// FileWatcher watches the project root recursively and the package manifest.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	config   Config
	filters  []FileFilter
	store    Invalidator
	observer ChangeObserver
	batcher  *Batcher
	logger   logging.Logger

	mutex   sync.Mutex
	started bool
	done    chan struct{}
}

// NewFileWatcher creates a new file watcher. observer may be nil.
func NewFileWatcher(config Config, store Invalidator, observer ChangeObserver, sink ChangeSink, logger logging.Logger) (*FileWatcher, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("watch root is required")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	config.Root = root

	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Discard()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		config:   config,
		store:    store,
		observer: observer,
		batcher:  NewBatcher(config.Debounce, sink),
		logger:   logger.WithComponent("watcher"),
		done:     make(chan struct{}),
	}
	fw.filters = []FileFilter{
		NoGitFilter,
		NoDependencyFilter,
		NotUnderFilter(config.Exclude...),
		IgnoreFilter(config.Ignore...),
	}

	return fw, nil
}

// Batcher returns the batch state machine fed by this watcher.
func (fw *FileWatcher) Batcher() *Batcher {
	return fw.batcher
}

// Start registers the watched directories and starts the event loop. It
// returns once every directory has been added.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.Lock()
	if fw.started {
		fw.mutex.Unlock()
		return fmt.Errorf("watcher already started")
	}
	fw.started = true
	fw.mutex.Unlock()

	if err := fw.AddRecursive(fw.config.Root); err != nil {
		return err
	}

	if fw.config.Manifest != "" {
		if _, err := os.Stat(fw.config.Manifest); err == nil {
			if err := fw.watcher.Add(fw.config.Manifest); err != nil {
				return fmt.Errorf("watching manifest: %w", err)
			}
		}
	}

	go fw.watchLoop(ctx)

	fw.logger.Info(ctx, "Watching for changes",
		"root", fw.config.Root,
		"debounce", fw.config.Debounce)
	return nil
}

// AddRecursive adds a directory and all subdirectories that are not excluded.
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && !fw.accept(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// Stop flushes the pending batch and closes the underlying watcher.
func (fw *FileWatcher) Stop() error {
	err := fw.watcher.Close()

	fw.mutex.Lock()
	started := fw.started
	fw.mutex.Unlock()
	if started {
		<-fw.done
	}

	fw.batcher.Flush()
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer close(fw.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fw.accept(event.Name) {
				if err := fw.AddRecursive(event.Name); err != nil {
					fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
				}
			}
			return
		}
	}

	fw.HandleChange(ctx, event.Name)
}

// HandleChange processes one changed path: the observer is notified, the
// cache entry is dropped, and the web path joins the pending batch. The entry
// is gone before HandleChange returns.
func (fw *FileWatcher) HandleChange(ctx context.Context, absPath string) {
	if !fw.accept(absPath) {
		return
	}

	if fw.observer != nil {
		fw.observer.WatchChange(ctx, absPath)
	}

	id := cache.ModuleID(fw.config.Root, absPath)
	if fw.store != nil {
		fw.store.Invalidate(id)
	}

	webPath := cache.WebPath(id)
	if strings.HasPrefix(id, "../") {
		// Files outside the root (the manifest) are reported by name.
		webPath = "/" + filepath.Base(absPath)
	}

	fw.logger.Debug(ctx, "Change detected", "path", webPath)
	fw.batcher.Add(webPath)
}

func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.Lock()
	filters := fw.filters
	fw.mutex.Unlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

// Common file filters

// NoGitFilter rejects version-control metadata.
func NoGitFilter(path string) bool {
	return !hasSegment(path, ".git")
}

// NoDependencyFilter rejects installed dependencies.
func NoDependencyFilter(path string) bool {
	return !hasSegment(path, "node_modules")
}

// NotUnderFilter rejects paths inside any of dirs.
func NotUnderFilter(dirs ...string) FileFilter {
	cleaned := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir != "" {
			cleaned = append(cleaned, filepath.Clean(dir))
		}
	}
	return func(path string) bool {
		path = filepath.Clean(path)
		for _, dir := range cleaned {
			if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
				return false
			}
		}
		return true
	}
}

// IgnoreFilter rejects paths whose base name matches one of patterns.
func IgnoreFilter(patterns ...string) FileFilter {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, base); matched {
				return false
			}
		}
		return true
	}
}

func hasSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

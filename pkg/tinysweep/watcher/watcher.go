// Package watcher re-runs compression when images under a source tree
// change. Create and write events are collected per file and delivered in
// debounced batches, so an editor saving a file several times, or a build
// copying a directory of assets, results in a single run.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/filter"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
)

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Root       string
	Extensions []string
	Exclude    []string
	SkipPaths  []string
	Debounce   time.Duration
}

// BatchFunc handles one debounced batch of absolute file paths.
type BatchFunc func(ctx context.Context, paths []string)

// Watcher watches a source tree recursively.
type Watcher struct {
	opts    Options
	root    string
	fsw     *fsnotify.Watcher
	exclude []filter.Rule
	skip    map[string]struct{}

	mu      sync.Mutex
	watched map[string]struct{}
	pending map[string]struct{}
	closed  bool

	logger *logging.Logger
}

// New sets up watches on Root and every directory below it.
func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = filter.ImageExtensions
	}
	opts.Extensions = filter.NormalizeExtensions(opts.Extensions)

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("watch root is not a directory: " + root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		opts:    opts,
		root:    root,
		fsw:     fsw,
		skip:    make(map[string]struct{}),
		watched: make(map[string]struct{}),
		pending: make(map[string]struct{}),
		logger:  logging.Get("watcher"),
	}
	for _, p := range opts.Exclude {
		w.exclude = append(w.exclude, filter.Glob(p))
	}
	for _, p := range opts.SkipPaths {
		if abs, err := filepath.Abs(p); err == nil {
			w.skip[abs] = struct{}{}
		}
	}

	if err := w.addTree(root, false); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string {
	return w.root
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.fsw.Close()
}

// Run delivers batches to fn until ctx is cancelled or the watcher is
// closed. fn runs on the Run goroutine; events arriving meanwhile are
// queued for the next batch.
func (w *Watcher) Run(ctx context.Context, fn BatchFunc) error {
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-timer.C:
			if batch := w.drain(); len(batch) > 0 {
				w.logger.Info("changes detected", "files", len(batch))
				fn(ctx, batch)
			}
		}
	}
}

// handle records an event and reports whether anything was queued.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if w.ignored(event.Name) {
		return false
	}

	info, err := os.Lstat(event.Name)
	if err != nil || info.Mode()&fs.ModeSymlink != 0 {
		return false
	}

	if info.IsDir() {
		// Files can land in a new directory before its watch exists.
		return w.addTree(event.Name, true) == nil && w.pendingLen() > 0
	}
	return w.enqueue(event.Name)
}

func (w *Watcher) enqueue(path string) bool {
	if !filter.HasExtension(path, w.opts.Extensions) {
		return false
	}
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.mu.Unlock()
	return true
}

func (w *Watcher) pendingLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(batch)
	return batch
}

func (w *Watcher) ignored(path string) bool {
	if _, ok := w.skip[path]; ok {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, rule := range w.exclude {
		if rule.Matches(rel) {
			return true
		}
	}
	return false
}

// addTree watches dir and its subdirectories. With enqueueFiles set, image
// files already present are queued too.
func (w *Watcher) addTree(dir string, enqueueFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if path != w.root && w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		if enqueueFiles && d.Type().IsRegular() {
			w.enqueue(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if _, ok := w.watched[path]; ok {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.watched[path] = struct{}{}
	return nil
}

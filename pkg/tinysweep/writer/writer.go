// Package writer stores emitted records under a destination root.
package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// ErrOutsideRoot is returned for a record whose relative path escapes the
// destination root.
var ErrOutsideRoot = errors.New("path escapes destination root")

// ErrNoContent is returned for records without a buffer.
var ErrNoContent = errors.New("record has no buffered content")

// Writer writes records to Root/<Relative>. It is safe for concurrent use.
type Writer struct {
	root   string
	dryRun bool
	mode   os.FileMode

	written atomic.Int64
	bytes   atomic.Int64

	dirsMu sync.Mutex
	dirs   map[string]struct{}

	logger *logging.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithDryRun reports what would be written without touching the disk.
func WithDryRun(dry bool) Option {
	return func(w *Writer) {
		w.dryRun = dry
	}
}

// WithMode sets the permission bits of new files. The default is 0644.
func WithMode(mode os.FileMode) Option {
	return func(w *Writer) {
		w.mode = mode
	}
}

// New returns a writer rooted at root.
func New(root string, opts ...Option) (*Writer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	w := &Writer{
		root:   abs,
		mode:   0o644,
		dirs:   make(map[string]struct{}),
		logger: logging.Get("writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute destination root.
func (w *Writer) Root() string {
	return w.root
}

// Target returns where rec would be written.
func (w *Writer) Target(rec *types.FileRecord) (string, error) {
	target := filepath.Join(w.root, filepath.FromSlash(rec.Relative))
	rel, err := filepath.Rel(w.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rec.Relative)
	}
	return target, nil
}

// Write stores rec and returns the target path. Existing files are replaced
// through a temp file and rename, so readers never see a partial image.
func (w *Writer) Write(rec *types.FileRecord) (string, error) {
	if !rec.IsBuffer() {
		return "", fmt.Errorf("%w: %s", ErrNoContent, rec.Relative)
	}

	target, err := w.Target(rec)
	if err != nil {
		return "", err
	}

	if w.dryRun {
		w.logger.Info("dry run", "path", target, "size", types.FormatSize(rec.Size()))
		return target, nil
	}

	if err := w.ensureDir(filepath.Dir(target)); err != nil {
		return "", err
	}

	if err := writeFile(target, rec.Contents, w.mode); err != nil {
		return "", err
	}

	w.written.Add(1)
	w.bytes.Add(rec.Size())
	w.logger.Debug("wrote", "path", target, "size", rec.Size())
	return target, nil
}

// Written returns the number of files and bytes written.
func (w *Writer) Written() (files, bytes int64) {
	return w.written.Load(), w.bytes.Load()
}

func (w *Writer) ensureDir(dir string) error {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()

	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	w.dirs[dir] = struct{}{}
	return nil
}

func writeFile(target string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return fmt.Errorf("renaming into %s: %w", target, err)
	}
	return nil
}

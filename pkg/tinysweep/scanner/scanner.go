package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/filter"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// ErrNotDirectory is returned when Root is not a directory.
var ErrNotDirectory = errors.New("source is not a directory")

// ErrOutsideRoot is reported by Load for a path not under the root.
var ErrOutsideRoot = errors.New("path outside source root")

// Error is a per-entry failure. The walk continues past it.
type Error struct {
	Path string
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Stats describes a finished scan.
type Stats struct {
	Dirs     int64
	Files    int64
	Bytes    int64
	Excluded int64
	Errors   []Error
	Elapsed  time.Duration
}

// Progress is a live snapshot of a running scan.
type Progress struct {
	Dirs    int64
	Files   int64
	Bytes   int64
	Current string
}

// Scanner walks one source tree.
type Scanner struct {
	opts    Options
	root    string
	exclude []filter.Rule
	skip    map[string]struct{}

	dirs     atomic.Int64
	files    atomic.Int64
	bytes    atomic.Int64
	excluded atomic.Int64
	current  atomic.Value

	errorsMu sync.Mutex
	errors   []Error

	logger *logging.Logger
}

// New returns a scanner for opts.
func New(opts Options) *Scanner {
	opts.normalize()

	s := &Scanner{
		opts:   opts,
		skip:   make(map[string]struct{}, len(opts.SkipPaths)),
		logger: logging.Get("scanner"),
	}
	for _, pattern := range opts.Exclude {
		s.exclude = append(s.exclude, filter.Glob(pattern))
	}
	for _, p := range opts.SkipPaths {
		if abs, err := filepath.Abs(p); err == nil {
			s.skip[abs] = struct{}{}
		}
	}
	s.current.Store("")
	return s
}

// Root returns the resolved absolute root. It is empty until Scan starts.
func (s *Scanner) Root() string {
	return s.root
}

// Progress returns current counters. It is safe to call while Scan runs.
func (s *Scanner) Progress() Progress {
	current, _ := s.current.Load().(string)
	return Progress{
		Dirs:    s.dirs.Load(),
		Files:   s.files.Load(),
		Bytes:   s.bytes.Load(),
		Current: current,
	}
}

// Scan walks the tree and sends a record for every matching file to out.
// out is closed when Scan returns. Unreadable entries are collected in
// Stats.Errors; only an invalid root or cancellation fails the scan.
func (s *Scanner) Scan(ctx context.Context, out chan<- *types.FileRecord) (*Stats, error) {
	defer close(out)
	start := time.Now()

	root, err := s.validateRoot()
	if err != nil {
		return nil, err
	}
	s.root = root
	s.current.Store(root)

	conf := fastwalk.Config{
		Follow:     s.opts.Follow,
		NumWorkers: s.opts.Workers,
	}

	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.addError(path, err)
			return nil
		}
		if path == root {
			return nil
		}

		if s.skipped(path) {
			s.excluded.Add(1)
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			s.dirs.Add(1)
			s.current.Store(path)
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !filter.HasExtension(d.Name(), s.opts.Extensions) {
			return nil
		}

		rec, err := s.read(path)
		if err != nil {
			s.addError(path, err)
			return nil
		}
		if rec == nil {
			return nil
		}

		select {
		case out <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	stats := &Stats{
		Dirs:     s.dirs.Load(),
		Files:    s.files.Load(),
		Bytes:    s.bytes.Load(),
		Excluded: s.excluded.Load(),
		Errors:   s.Errors(),
		Elapsed:  time.Since(start),
	}

	if walkErr != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, fmt.Errorf("walking %s: %w", root, walkErr)
	}

	s.logger.Debug("scan complete",
		"root", root,
		"files", stats.Files,
		"dirs", stats.Dirs,
		"bytes", types.FormatSize(stats.Bytes),
		"errors", len(stats.Errors),
		"elapsed", stats.Elapsed)
	return stats, nil
}

// Errors returns a copy of the errors collected so far.
func (s *Scanner) Errors() []Error {
	s.errorsMu.Lock()
	defer s.errorsMu.Unlock()

	out := make([]Error, len(s.errors))
	copy(out, s.errors)
	return out
}

func (s *Scanner) validateRoot() (string, error) {
	root, err := filepath.Abs(s.opts.Root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}
	return root, nil
}

// skipped reports whether path is excluded by a pattern or a skip path.
func (s *Scanner) skipped(path string) bool {
	if _, ok := s.skip[path]; ok {
		return true
	}
	if len(s.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	for _, rule := range s.exclude {
		if rule.Matches(rel) {
			return true
		}
	}
	return false
}

// read loads the file at path into a record. It returns nil for files over
// the size limit.
func (s *Scanner) read(path string) (*types.FileRecord, error) {
	if s.opts.MaxSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > s.opts.MaxSize {
			s.excluded.Add(1)
			return nil, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Empty files stay buffers so they are copied to the destination.
	if data == nil {
		data = []byte{}
	}

	s.files.Add(1)
	s.bytes.Add(int64(len(data)))
	return types.NewFileRecord(s.root, path, data)
}

func (s *Scanner) addError(path string, err error) {
	s.errorsMu.Lock()
	s.errors = append(s.errors, Error{Path: path, Err: err})
	s.errorsMu.Unlock()
	s.logger.Warn("scan error", "path", path, "error", err)
}

// Load reads the given absolute paths under root into records, in order.
// Paths that cannot be read or lie outside root are reported as errors and
// left out.
func Load(root string, paths []string) ([]*types.FileRecord, []Error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, []Error{{Path: root, Err: err}}
	}

	var (
		records []*types.FileRecord
		errs    []Error
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, Error{Path: p, Err: err})
			continue
		}
		if !info.Mode().IsRegular() {
			errs = append(errs, Error{Path: p, Err: errors.New("not a regular file")})
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, Error{Path: p, Err: err})
			continue
		}
		if data == nil {
			data = []byte{}
		}
		rec, err := types.NewFileRecord(absRoot, p, data)
		if err != nil {
			errs = append(errs, Error{Path: p, Err: err})
			continue
		}
		if rec.Relative == ".." || strings.HasPrefix(rec.Relative, "../") {
			errs = append(errs, Error{Path: p, Err: ErrOutsideRoot})
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// Collect runs a scan and returns all records at once.
func Collect(ctx context.Context, opts Options) ([]*types.FileRecord, *Stats, error) {
	s := New(opts)
	ch := make(chan *types.FileRecord, 64)

	var (
		stats *Stats
		err   error
		done  = make(chan struct{})
	)
	go func() {
		defer close(done)
		stats, err = s.Scan(ctx, ch)
	}()

	var records []*types.FileRecord
	for rec := range ch {
		records = append(records, rec)
	}
	<-done
	return records, stats, err
}

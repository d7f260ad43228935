package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("entry not found")

// Manifest stores run entries as JSON files in a directory.
type Manifest struct {
	dir string
	mu  sync.Mutex
}

// New creates a Manifest for dir. The directory is created on first write.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{dir: dir}, nil
}

// Dir returns the manifest directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// Log persists run and returns the created entry.
func (m *Manifest) Log(run Run) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.Operation == "" {
		run.Operation = OpCompress
	}
	files := run.Files
	if files == nil {
		files = []FileRecord{}
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:          generateID(run.Operation, now),
		Timestamp:   now,
		Operation:   run.Operation,
		Source:      run.Source,
		Destination: run.Destination,
		Files:       files,
		Summary:     run.Summary,
	}

	if err := m.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write manifest entry: %w", err)
	}
	logging.Get("manifest").Debug("logged run", "id", entry.ID, "files", len(files))
	return entry, nil
}

func (m *Manifest) writeEntry(entry *Entry) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	filePath := filepath.Join(m.dir, entry.ID+".json")
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries newest first. A limit of 0 or less returns all.
func (m *Manifest) List(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID. A unique ID prefix is accepted.
func (m *Manifest) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	var match *Entry
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
		if strings.HasPrefix(entries[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous entry ID: %s", id)
			}
			match = &entries[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed. A retention of 0 or less keeps everything.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	var removed int
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, f.Name())); err != nil {
			logging.Get("manifest").Warn("failed to remove entry", "file", f.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (m *Manifest) readAll() ([]Entry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Skip files that can't be parsed
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// generateID creates an ID like "compress-20240615T103000-<uuid>".
func generateID(op OperationType, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", op, now.Format("20060102T150405"), uuid.NewString())
}

// FromResults builds a Run from pipeline results. Ignored records are left
// out of the file list but still counted.
func FromResults(op OperationType, source, dest string, results []pipeline.Result, sum pipeline.Summary) Run {
	files := make([]FileRecord, 0, len(results))
	for _, r := range results {
		if r.Outcome == pipeline.OutcomeIgnored {
			continue
		}
		rec := FileRecord{
			Path:       r.Path(),
			Outcome:    r.Outcome.String(),
			SizeBefore: r.InputSize,
			SizeAfter:  r.OutputSize,
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		files = append(files, rec)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return Run{
		Operation:   op,
		Source:      source,
		Destination: dest,
		Files:       files,
		Summary: Summary{
			TotalFiles:       sum.Total,
			Compressed:       sum.Compressed,
			Skipped:          sum.Skipped,
			Ignored:          sum.Ignored,
			Passthrough:      sum.Passthrough,
			Failed:           sum.Failed,
			BytesBefore:      sum.BytesIn,
			BytesAfter:       sum.BytesOut,
			SavingsPercent:   types.Savings(sum.BytesIn, sum.BytesOut),
			CompressionCount: sum.CompressionCount,
			DurationMillis:   sum.Elapsed.Milliseconds(),
		},
	}
}

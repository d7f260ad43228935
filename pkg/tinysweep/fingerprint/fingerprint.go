// Package fingerprint keeps the signature cache that lets a run skip files
// whose content has not changed since they were last compressed.
//
// A Table holds relative path -> MD5 digest in memory. It is loaded once
// from a Backend before a run and written back once after it, and only when
// something changed. Backend failures are never fatal: a broken or missing
// store behaves like an empty one.
package fingerprint

import (
	"context"
	"crypto/md5" //nolint:gosec // content identity only
	"encoding/hex"
	"sort"
	"sync"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// Hash returns the lower-case hex MD5 digest of content.
func Hash(content []byte) types.Fingerprint {
	sum := md5.Sum(content)
	return types.Fingerprint(hex.EncodeToString(sum[:]))
}

// Table is the in-memory signature map. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[string]types.Fingerprint
	dirty   bool
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]types.Fingerprint),
	}
}

// Compare hashes content and reports whether it equals the stored digest
// for path. The digest is returned either way so callers can record it
// without hashing twice.
func (t *Table) Compare(path string, content []byte) (bool, types.Fingerprint) {
	digest := Hash(content)

	t.mu.RLock()
	stored, ok := t.entries[path]
	t.mu.RUnlock()

	return ok && stored == digest, digest
}

// Update records digest for path and marks the table dirty.
func (t *Table) Update(path string, digest types.Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[path] = digest
	t.dirty = true
}

// Get returns the stored digest for path.
func (t *Table) Get(path string) (types.Fingerprint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fp, ok := t.entries[path]
	return fp, ok
}

// Delete removes path. It marks the table dirty only if path was present.
func (t *Table) Delete(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[path]; !ok {
		return false
	}
	delete(t.entries, path)
	t.dirty = true
	return true
}

// Reset drops every entry and marks the table dirty.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]types.Fingerprint)
	t.dirty = true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Dirty reports whether the table changed since it was loaded or persisted.
func (t *Table) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// Snapshot returns a copy of the entries.
func (t *Table) Snapshot() map[string]types.Fingerprint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]types.Fingerprint, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Paths returns the stored paths in sorted order.
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Load replaces the entries with what backend holds and clears the dirty
// flag. On any error the table is left as it was and a warning is logged.
func (t *Table) Load(ctx context.Context, backend Backend) {
	logger := logging.Get("fingerprint")

	entries, err := backend.Load(ctx)
	if err != nil {
		logger.Warn("signature store unreadable, starting empty",
			"location", backend.Location(), "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]types.Fingerprint, len(entries))
	for k, v := range entries {
		if v.IsZero() {
			continue
		}
		t.entries[k] = v
	}
	t.dirty = false
	logger.Debug("signatures loaded", "location", backend.Location(), "count", len(t.entries))
}

// Persist writes the whole table to backend if it is dirty. It reports
// whether a write happened and succeeded. Failures are logged, not returned.
func (t *Table) Persist(ctx context.Context, backend Backend) bool {
	if !t.Dirty() {
		return false
	}

	logger := logging.Get("fingerprint")

	snapshot := t.Snapshot()
	if err := backend.Save(ctx, snapshot); err != nil {
		logger.Warn("persisting signatures failed",
			"location", backend.Location(), "error", err)
		return false
	}

	t.mu.Lock()
	t.dirty = false
	t.mu.Unlock()

	logger.Debug("signatures persisted", "location", backend.Location(), "count", len(snapshot))
	return true
}

package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// Backend kinds accepted by Open.
const (
	KindJSON   = "json"
	KindBadger = "badger"
)

// ErrUnknownBackend is returned by Open for an unrecognised kind.
var ErrUnknownBackend = errors.New("unknown signature backend")

// Backend is the persistence surface for a Table.
type Backend interface {
	// Load returns every stored entry. A store that does not exist yet
	// loads as empty without error.
	Load(ctx context.Context) (map[string]types.Fingerprint, error)

	// Save replaces the stored entries with entries.
	Save(ctx context.Context, entries map[string]types.Fingerprint) error

	// Location describes where the store lives, for logs and the CLI.
	Location() string

	Close() error
}

// Open returns the backend of the given kind rooted at location.
// An empty kind selects the JSON sig file.
func Open(kind, location string) (Backend, error) {
	if location == "" {
		return nil, types.ConfigError("signature store location is empty")
	}
	switch strings.ToLower(kind) {
	case "", KindJSON:
		return NewJSONFile(location), nil
	case KindBadger:
		return OpenBadger(location)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// JSONFile stores signatures as a single JSON object mapping relative path
// to hex digest.
type JSONFile struct {
	path string
}

// NewJSONFile returns a JSONFile backend for path. Nothing is touched on disk
// until Load or Save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Location returns the file path.
func (j *JSONFile) Location() string {
	return j.path
}

// Load reads and decodes the file.
func (j *JSONFile) Load(ctx context.Context) (map[string]types.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]types.Fingerprint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading signature file: %w", err)
	}

	entries := make(map[string]types.Fingerprint)
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding signature file: %w", err)
	}
	return entries, nil
}

// Save writes entries through a temp file in the same directory and renames
// it over the target.
func (j *JSONFile) Save(ctx context.Context, entries map[string]types.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding signatures: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating signature directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (j *JSONFile) Close() error {
	return nil
}

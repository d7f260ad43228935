// Package types provides core data types for tinysweep.
// It includes the file record that flows through the compression pipeline,
// content fingerprints, the tagged error type, and size parsing/formatting helpers.
package types

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// FileRecord is a single file travelling through the pipeline.
// Identity (Relative, Path, Base) never changes once the record is created;
// stages may only replace Contents or set Skipped.
type FileRecord struct {
	// Relative is the slash-separated path relative to Base.
	// It is the key used for fingerprints and filter rules.
	Relative string `json:"relative"`

	// Path is the absolute path of the source file.
	Path string `json:"path"`

	// Base is the root directory Relative is taken from.
	Base string `json:"base"`

	// Contents holds the whole file in memory. Nil means no content
	// (directory markers, placeholder entries).
	Contents []byte `json:"-"`

	// Stream is set when content is supplied incrementally instead of as a
	// single buffer. The pipeline rejects such records.
	Stream io.Reader `json:"-"`

	// Skipped is set when the fingerprint cache short-circuited compression.
	Skipped bool `json:"skipped"`
}

// NewFileRecord builds a buffered record for the file at path under base.
func NewFileRecord(base, path string, contents []byte) (*FileRecord, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return nil, fmt.Errorf("relative path for %s: %w", path, err)
	}
	return &FileRecord{
		Relative: filepath.ToSlash(rel),
		Path:     path,
		Base:     base,
		Contents: contents,
	}, nil
}

// IsNull reports whether the record carries no content at all.
func (f *FileRecord) IsNull() bool {
	return f.Contents == nil && f.Stream == nil
}

// IsEmpty reports whether the record has no bytes to compress: it is null
// or holds a zero-length buffer.
func (f *FileRecord) IsEmpty() bool {
	return f.Stream == nil && len(f.Contents) == 0
}

// IsStream reports whether the content is supplied as a stream.
func (f *FileRecord) IsStream() bool {
	return f.Stream != nil
}

// IsBuffer reports whether the content is a single in-memory buffer.
func (f *FileRecord) IsBuffer() bool {
	return f.Contents != nil && f.Stream == nil
}

// Size returns the length of the buffered content.
func (f *FileRecord) Size() int64 {
	return int64(len(f.Contents))
}

// WithContents returns a copy of the record with the same identity and new content.
func (f *FileRecord) WithContents(contents []byte) *FileRecord {
	out := *f
	out.Contents = contents
	out.Stream = nil
	return &out
}

// Fingerprint is a hex-rendered 128-bit content hash.
type Fingerprint string

// String returns the hex digest.
func (f Fingerprint) String() string {
	return string(f)
}

// IsZero reports whether the fingerprint is empty.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It supports the following formats:
//   - Plain bytes: "1024", "0"
//   - With byte suffix: "512B", "512b"
//   - Kilobytes: "100K", "100k", "100KB", "100KiB"
//   - Megabytes: "50M", "50m", "50MB", "50MiB"
//   - Gigabytes: "2G", "2g", "2GB", "2GiB"
//   - Terabytes: "1T", "1t", "1TB", "1TiB"
//
// Decimal values are supported and truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string
// using binary (IEC) units.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// Savings returns the percentage saved going from before to after bytes.
// It returns 0 when before is not positive.
func Savings(before, after int64) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}

// Package manifest records the history of compression runs.
package manifest

import "time"

// OperationType represents the type of operation.
type OperationType string

const (
	// OpCompress is a compress run.
	OpCompress OperationType = "compress"
	// OpWatch is a batch compressed by watch mode.
	OpWatch OperationType = "watch"
)

// Entry represents a single manifest entry.
type Entry struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Operation   OperationType `json:"operation"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Files       []FileRecord  `json:"files"`
	Summary     Summary       `json:"summary"`
}

// FileRecord is one file handled by a run.
type FileRecord struct {
	Path       string `json:"path"`
	Outcome    string `json:"outcome"`
	SizeBefore int64  `json:"size_before"`
	SizeAfter  int64  `json:"size_after"`
	Error      string `json:"error,omitempty"`
}

// Summary contains per-outcome counts and byte totals.
type Summary struct {
	TotalFiles       int     `json:"total_files"`
	Compressed       int     `json:"compressed"`
	Skipped          int     `json:"skipped"`
	Ignored          int     `json:"ignored"`
	Passthrough      int     `json:"passthrough"`
	Failed           int     `json:"failed"`
	BytesBefore      int64   `json:"bytes_before"`
	BytesAfter       int64   `json:"bytes_after"`
	SavingsPercent   float64 `json:"savings_percent"`
	CompressionCount int     `json:"compression_count,omitempty"`
	DurationMillis   int64   `json:"duration_ms"`
}

// Run is what a caller hands to Log.
type Run struct {
	Operation   OperationType
	Source      string
	Destination string
	Files       []FileRecord
	Summary     Summary
}

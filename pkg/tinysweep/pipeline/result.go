package pipeline

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// Outcome is the terminal state of one file.
type Outcome int

const (
	// OutcomePassthrough is a record without content, forwarded untouched.
	OutcomePassthrough Outcome = iota
	// OutcomeIgnored is a record matched by the ignore rule and dropped.
	OutcomeIgnored
	// OutcomeSkipped is a cache hit: content unchanged since the last run.
	OutcomeSkipped
	// OutcomeCompressed is a record whose content was replaced.
	OutcomeCompressed
	// OutcomeFailed is a record that could not be compressed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassthrough:
		return "passthrough"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCompressed:
		return "compressed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what happened to one input record.
type Result struct {
	// Record is the record to forward: the replacement on success, the
	// original otherwise.
	Record *types.FileRecord

	Outcome Outcome

	// Err is set for OutcomeFailed.
	Err error

	// Forward is whether Record goes downstream. See Emit.
	Forward bool

	// InputSize and OutputSize are content sizes before and after.
	// They are equal unless the record was compressed.
	InputSize  int64
	OutputSize int64

	// CompressionCount is the service's monthly counter after this upload.
	CompressionCount int

	Elapsed time.Duration
}

// Emit reports whether the record should be written downstream.
func (r Result) Emit() bool {
	return r.Forward && r.Record != nil
}

// Path returns the relative path of the record.
func (r Result) Path() string {
	if r.Record == nil {
		return ""
	}
	return r.Record.Relative
}

// Summary aggregates the results of one run.
type Summary struct {
	Total       int
	Passthrough int
	Ignored     int
	Skipped     int
	Compressed  int
	Failed      int

	// BytesIn and BytesOut cover compressed files only.
	BytesIn  int64
	BytesOut int64

	// CompressionCount is the highest service counter seen.
	CompressionCount int

	Elapsed time.Duration

	// Persisted is set when the signature store was written.
	Persisted bool

	// Errors collects every per-file error.
	Errors *multierror.Error
}

func (s *Summary) add(r Result) {
	s.Total++
	switch r.Outcome {
	case OutcomePassthrough:
		s.Passthrough++
	case OutcomeIgnored:
		s.Ignored++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeCompressed:
		s.Compressed++
		s.BytesIn += r.InputSize
		s.BytesOut += r.OutputSize
		if r.CompressionCount > s.CompressionCount {
			s.CompressionCount = r.CompressionCount
		}
	case OutcomeFailed:
		s.Failed++
	}
	if r.Err != nil {
		s.Errors = multierror.Append(s.Errors, r.Err)
	}
}

// Err returns the per-file errors as one error, or nil.
func (s Summary) Err() error {
	return s.Errors.ErrorOrNil()
}

// Saved returns the bytes saved by compression.
func (s Summary) Saved() int64 {
	return s.BytesIn - s.BytesOut
}

// Savings returns the percentage saved by compression.
func (s Summary) Savings() float64 {
	return types.Savings(s.BytesIn, s.BytesOut)
}

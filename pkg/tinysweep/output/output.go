// Package output renders the report of a compression run in various
// formats (pretty, plain, json, yaml).
//
// Formatters are looked up by name from a registry:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// FileLine is one file in a report.
type FileLine struct {
	Path        string  `json:"path" yaml:"path"`
	Outcome     string  `json:"outcome" yaml:"outcome"`
	Before      int64   `json:"before" yaml:"before"`
	After       int64   `json:"after" yaml:"after"`
	BeforeHuman string  `json:"before_human" yaml:"before_human"`
	AfterHuman  string  `json:"after_human" yaml:"after_human"`
	Savings     float64 `json:"savings_percent" yaml:"savings_percent"`
	Error       string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Totals summarizes a report.
type Totals struct {
	Files            int           `json:"files" yaml:"files"`
	Compressed       int           `json:"compressed" yaml:"compressed"`
	Skipped          int           `json:"skipped" yaml:"skipped"`
	Ignored          int           `json:"ignored" yaml:"ignored"`
	Passthrough      int           `json:"passthrough" yaml:"passthrough"`
	Failed           int           `json:"failed" yaml:"failed"`
	BytesBefore      int64         `json:"bytes_before" yaml:"bytes_before"`
	BytesAfter       int64         `json:"bytes_after" yaml:"bytes_after"`
	Saved            int64         `json:"saved" yaml:"saved"`
	SavedHuman       string        `json:"saved_human" yaml:"saved_human"`
	Savings          float64       `json:"savings_percent" yaml:"savings_percent"`
	CompressionCount int           `json:"compression_count" yaml:"compression_count"`
	Duration         time.Duration `json:"-" yaml:"-"`
}

// Report is the data rendered by a Formatter.
type Report struct {
	Source      string
	Destination string
	Files       []FileLine
	Totals      Totals
	DryRun      bool
	Interrupted bool
	Warnings    []string
}

// NewReport builds a report from pipeline results. Ignored records are
// counted but not listed. Files are sorted by path.
func NewReport(source, dest string, results []pipeline.Result, sum pipeline.Summary) *Report {
	r := &Report{
		Source:      source,
		Destination: dest,
		Files:       make([]FileLine, 0, len(results)),
	}

	for _, res := range results {
		if res.Outcome == pipeline.OutcomeIgnored {
			continue
		}
		line := FileLine{
			Path:        res.Path(),
			Outcome:     res.Outcome.String(),
			Before:      res.InputSize,
			After:       res.OutputSize,
			BeforeHuman: types.FormatSize(res.InputSize),
			AfterHuman:  types.FormatSize(res.OutputSize),
			Savings:     types.Savings(res.InputSize, res.OutputSize),
		}
		if res.Err != nil {
			line.Error = res.Err.Error()
		}
		r.Files = append(r.Files, line)
	}
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })

	r.Totals = Totals{
		Files:            sum.Total,
		Compressed:       sum.Compressed,
		Skipped:          sum.Skipped,
		Ignored:          sum.Ignored,
		Passthrough:      sum.Passthrough,
		Failed:           sum.Failed,
		BytesBefore:      sum.BytesIn,
		BytesAfter:       sum.BytesOut,
		Saved:            sum.Saved(),
		SavedHuman:       types.FormatSize(sum.Saved()),
		Savings:          sum.Savings(),
		CompressionCount: sum.CompressionCount,
		Duration:         sum.Elapsed,
	}
	return r
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// formatDuration renders d for humans.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	switch {
	case sec < 1:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case sec < 60:
		return fmt.Sprintf("%.1fs", sec)
	default:
		minutes := int(sec) / 60
		return fmt.Sprintf("%dm %ds", minutes, int(sec)%60)
	}
}

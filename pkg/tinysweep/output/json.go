package output

import (
	"bytes"
	"encoding/json"
)

// document is the structure shared by the json and yaml formatters.
type document struct {
	Source      string     `json:"source" yaml:"source"`
	Destination string     `json:"destination" yaml:"destination"`
	DryRun      bool       `json:"dry_run" yaml:"dry_run"`
	Interrupted bool       `json:"interrupted" yaml:"interrupted"`
	Files       []FileLine `json:"files" yaml:"files"`
	Totals      Totals     `json:"totals" yaml:"totals"`
	Duration    string     `json:"duration" yaml:"duration"`
	Warnings    []string   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newDocument(r *Report) document {
	files := r.Files
	if files == nil {
		files = []FileLine{}
	}
	return document{
		Source:      r.Source,
		Destination: r.Destination,
		DryRun:      r.DryRun,
		Interrupted: r.Interrupted,
		Files:       files,
		Totals:      r.Totals,
		Duration:    r.Totals.Duration.String(),
		Warnings:    r.Warnings,
	}
}

// JSONFormatter writes the report as one indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)

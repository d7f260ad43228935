package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

func sampleReport() *Report {
	results := []pipeline.Result{
		{Record: &types.FileRecord{Relative: "icons/b.png"}, Outcome: pipeline.OutcomeCompressed, InputSize: 4096, OutputSize: 1024},
		{Record: &types.FileRecord{Relative: "a.png"}, Outcome: pipeline.OutcomeSkipped, InputSize: 10, OutputSize: 10},
		{Record: &types.FileRecord{Relative: "c.jpg"}, Outcome: pipeline.OutcomeFailed, InputSize: 20, OutputSize: 20,
			Err: errors.New("Unauthorized: wrong key for c.jpg")},
		{Record: &types.FileRecord{Relative: "skip/d.png"}, Outcome: pipeline.OutcomeIgnored},
	}
	sum := pipeline.Summary{
		Total: 4, Compressed: 1, Skipped: 1, Failed: 1, Ignored: 1,
		BytesIn: 4096, BytesOut: 1024, CompressionCount: 42, Elapsed: 2 * time.Second,
	}
	return NewReport("/src", "/dst", results, sum)
}

func TestNewReport(t *testing.T) {
	r := sampleReport()

	require.Len(t, r.Files, 3)
	assert.Equal(t, "a.png", r.Files[0].Path)
	assert.Equal(t, "c.jpg", r.Files[1].Path)
	assert.Equal(t, "icons/b.png", r.Files[2].Path)

	b := r.Files[2]
	assert.Equal(t, "compressed", b.Outcome)
	assert.Equal(t, "4.0 KiB", b.BeforeHuman)
	assert.Equal(t, "1.0 KiB", b.AfterHuman)
	assert.InDelta(t, 75.0, b.Savings, 0.001)

	assert.Equal(t, "Unauthorized: wrong key for c.jpg", r.Files[1].Error)

	assert.Equal(t, 4, r.Totals.Files)
	assert.Equal(t, int64(3072), r.Totals.Saved)
	assert.Equal(t, "3.0 KiB", r.Totals.SavedHuman)
	assert.InDelta(t, 75.0, r.Totals.Savings, 0.001)
	assert.Equal(t, 1, r.Totals.Ignored)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "pretty", "yaml"}, Available())

	for _, name := range Available() {
		f, err := Get(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	_, err := Get("xml")
	assert.EqualError(t, err, "unknown formatter: xml")

	reg := NewRegistry()
	reg.Register("plain", func() Formatter { return &PlainFormatter{} })
	assert.Equal(t, []string{"plain"}, reg.Available())
}

func TestPrettyFormatter(t *testing.T) {
	r := sampleReport()
	r.DryRun = true
	r.Warnings = []string{"scan error: /src/x.png"}

	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, r))
	out := buf.String()

	for _, want := range []string{
		"/src", "/dst", "Dry run", "STATUS", "icons/b.png", "75.0%",
		"Compressed:", "Failed:", "3.0 KiB", "42 compressions",
		"Errors:", "wrong key for c.jpg", "Warnings:", "scan error",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "skip/d.png")
}

func TestPrettyFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, NewReport("/s", "/d", nil, pipeline.Summary{})))
	assert.Contains(t, buf.String(), "No images processed")
	assert.NotContains(t, buf.String(), "Failed:")
	assert.NotContains(t, buf.String(), "Errors:")
}

func TestPlainFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"STATUS", "BEFORE", "AFTER", "PATH"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"compressed", "4096", "1024", "icons/b.png"}, strings.Fields(lines[3]))
	assert.Equal(t, "compressed=1 skipped=1 failed=1 saved=3072", lines[4])
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, sampleReport()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/src", doc["source"])
	assert.Equal(t, "2s", doc["duration"])

	files, ok := doc["files"].([]any)
	require.True(t, ok)
	assert.Len(t, files, 3)

	totals, ok := doc["totals"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 3072, totals["saved"], 0)
	assert.InDelta(t, 42, totals["compression_count"], 0)
}

func TestJSONFormatter_EmptyFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, &Report{}))
	assert.Contains(t, buf.String(), `"files": []`)
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, sampleReport()))

	var doc document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/dst", doc.Destination)
	require.Len(t, doc.Files, 3)
	assert.Equal(t, "failed", doc.Files[1].Outcome)
	assert.Equal(t, 1, doc.Totals.Compressed)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m 5s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.in))
		})
	}
}

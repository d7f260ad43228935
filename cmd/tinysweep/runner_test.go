package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/manifest"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/tinify/tinifytest"
)

const testKey = "test-key"

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

// sourceTree creates two images, a non-image and an excluded image.
func sourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.png"), []byte("\x89PNG-aaaaaaaaaaaaaaaaaaaa"))
	writeFile(t, filepath.Join(src, "icons", "b.jpg"), []byte("\xff\xd8\xff-bbbbbbbbbbbbbbbbbb"))
	writeFile(t, filepath.Join(src, "notes.txt"), []byte("not an image"))
	writeFile(t, filepath.Join(src, "node_modules", "c.png"), []byte("\x89PNG-cccccccccc"))
	return src
}

func testConfig(t *testing.T, srv *tinifytest.Server) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Key:        testKey,
		Endpoint:   srv.Endpoint(),
		Timeout:    5 * time.Second,
		Force:      config.DefaultRuleValue,
		Ignore:     config.DefaultRuleValue,
		Extensions: config.DefaultExtensions,
		Exclude:    config.DefaultExclusions,
		Output:     config.DefaultOutput,
	}
	cfg.Cache.Backend = config.DefaultBackend
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, source, dest string) *runner {
	t.Helper()
	r, err := newRunner(cfg, source, dest, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunnerCompressesIntoDestination(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)
	cfg.SigFile = filepath.Join(t.TempDir(), "sigs.json")

	r := newTestRunner(t, cfg, src, dst)
	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Total)
	assert.Equal(t, 2, res.Summary.Compressed)
	assert.True(t, res.Summary.Persisted)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, srv.Uploads())

	got, err := os.ReadFile(filepath.Join(dst, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, tinifytest.Shrink([]byte("\x89PNG-aaaaaaaaaaaaaaaaaaaa")), got)
	assert.FileExists(t, filepath.Join(dst, "icons", "b.jpg"))
	assert.NoFileExists(t, filepath.Join(dst, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "node_modules", "c.png"))
	assert.FileExists(t, cfg.SigFile)

	rep := r.report(res)
	assert.Equal(t, src, rep.Source)
	assert.Equal(t, dst, rep.Destination)
	assert.Len(t, rep.Files, 2)
}

func TestRunnerSkipsUnchangedImages(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)
	cfg.SigFile = filepath.Join(t.TempDir(), "sigs.json")

	first := newTestRunner(t, cfg, src, dst)
	_, err := first.run(context.Background(), first.scanAll(), nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestRunner(t, cfg, src, dst)
	var seen []pipeline.Result
	res, err := second.run(context.Background(), second.scanAll(), func(r pipeline.Result) {
		seen = append(seen, r)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Skipped)
	assert.Equal(t, 0, res.Summary.Compressed)
	assert.Equal(t, 2, srv.Uploads(), "unchanged images must not be uploaded again")
	assert.Len(t, seen, 2)
}

func TestRunnerReportsServiceFailures(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()
	srv.ErrorCode = "TooManyRequests"

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)

	r := newTestRunner(t, cfg, src, dst)
	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Failed)
	assert.Error(t, res.Summary.Err())
	assert.NoFileExists(t, filepath.Join(dst, "a.png"), "failed images are dropped unless keep_failed")
}

func TestRunnerKeepFailedCopiesOriginals(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()
	srv.ErrorCode = "BadSignature"

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)
	cfg.KeepFailed = true

	r := newTestRunner(t, cfg, src, dst)
	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Failed)
	got, err := os.ReadFile(filepath.Join(dst, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG-aaaaaaaaaaaaaaaaaaaa"), got)
}

func TestRunnerDryRunWritesNothing(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)

	r, err := newRunner(cfg, src, dst, true)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Compressed)
	assert.NoDirExists(t, dst)
	assert.True(t, r.report(res).DryRun)
}

func TestRunnerDryRunLeavesSignaturesUntouched(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)
	cfg.SigFile = filepath.Join(t.TempDir(), "sigs.json")

	dry, err := newRunner(cfg, src, dst, true)
	require.NoError(t, err)
	res, err := dry.run(context.Background(), dry.scanAll(), nil)
	require.NoError(t, err)
	require.NoError(t, dry.Close())
	assert.False(t, res.Summary.Persisted)
	assert.NoFileExists(t, cfg.SigFile)

	next := newTestRunner(t, cfg, src, dst)
	res, err = next.run(context.Background(), next.scanAll(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Compressed)
	assert.Equal(t, 0, res.Summary.Skipped)
	assert.Equal(t, 4, srv.Uploads())
	got, err := os.ReadFile(filepath.Join(dst, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, tinifytest.Shrink([]byte("\x89PNG-aaaaaaaaaaaaaaaaaaaa")), got)
}

func TestRunnerCopiesEmptyImages(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	writeFile(t, filepath.Join(src, "empty.png"), nil)
	dst := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(t, srv)

	r := newTestRunner(t, cfg, src, dst)
	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.Passthrough)
	assert.Equal(t, 0, res.Summary.Failed)
	assert.Equal(t, 2, srv.Uploads())
	got, err := os.ReadFile(filepath.Join(dst, "empty.png"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunnerSameDestIgnoresOwnWrites(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	cfg := testConfig(t, srv)
	cfg.SameDest = true

	r := newTestRunner(t, cfg, src, "")
	r.track = true
	assert.Equal(t, r.source, r.dest)

	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.Summary.Compressed)

	image := filepath.Join(src, "a.png")
	res, err = r.run(context.Background(), r.scanPaths([]string{image}), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary.Total, "a write made by the runner is not compressed again")
	assert.Equal(t, 2, srv.Uploads())

	writeFile(t, image, []byte("\x89PNG-edited-by-someone-else"))
	res, err = r.run(context.Background(), r.scanPaths([]string{image}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Compressed)
	assert.Equal(t, 3, srv.Uploads())
}

func TestRunnerCancelled(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	cfg := testConfig(t, srv)

	r := newTestRunner(t, cfg, src, filepath.Join(t.TempDir(), "out"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.run(ctx, r.scanAll(), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Interrupted)
	assert.True(t, r.report(res).Interrupted)
}

func TestRunnerRecordsHistory(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	cfg := testConfig(t, srv)
	cfg.Manifest.Enabled = true
	cfg.Manifest.Path = filepath.Join(t.TempDir(), "history")
	cfg.Manifest.RetentionDays = 30

	r := newTestRunner(t, cfg, src, filepath.Join(t.TempDir(), "out"))
	res, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)

	r.record(manifest.OpCompress, res)

	m, err := manifest.New(cfg.Manifest.Path)
	require.NoError(t, err)
	entries, err := m.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, manifest.OpCompress, entries[0].Operation)
	assert.Equal(t, 2, entries[0].Summary.Compressed)
	assert.Len(t, entries[0].Files, 2)
}

func TestNewRunnerValidates(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	t.Run("missing key", func(t *testing.T) {
		cfg := testConfig(t, srv)
		cfg.Key = ""
		_, err := newRunner(cfg, t.TempDir(), t.TempDir(), false)
		assert.ErrorContains(t, err, "missing API key")
	})

	t.Run("missing source", func(t *testing.T) {
		cfg := testConfig(t, srv)
		_, err := newRunner(cfg, filepath.Join(t.TempDir(), "nope"), t.TempDir(), false)
		assert.ErrorContains(t, err, "does not exist")
	})

	t.Run("source is a file", func(t *testing.T) {
		cfg := testConfig(t, srv)
		file := filepath.Join(t.TempDir(), "a.png")
		writeFile(t, file, []byte("x"))
		_, err := newRunner(cfg, file, t.TempDir(), false)
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestRunnerSkipsNestedDestination(t *testing.T) {
	srv := tinifytest.NewServer(testKey)
	defer srv.Close()

	src := sourceTree(t)
	dst := filepath.Join(src, "build")
	cfg := testConfig(t, srv)

	r := newTestRunner(t, cfg, src, dst)
	_, err := r.run(context.Background(), r.scanAll(), nil)
	require.NoError(t, err)

	r2 := newTestRunner(t, cfg, src, dst)
	res, err := r2.run(context.Background(), r2.scanAll(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Total, "the destination tree must not be fed back in")
}

func TestResolveTargets(t *testing.T) {
	src := t.TempDir()
	other := t.TempDir()

	tests := []struct {
		name     string
		sameDest bool
		args     []string
		wantDest string
		wantErr  string
	}{
		{name: "source and destination", args: []string{src, other}, wantDest: other},
		{name: "single argument needs same-dest", args: []string{src}, wantErr: "destination required"},
		{name: "same-dest in place", sameDest: true, args: []string{src}, wantDest: ""},
		{name: "same-dest with the same path", sameDest: true, args: []string{src, src}, wantDest: src},
		{name: "same-dest with another path", sameDest: true, args: []string{src, other}, wantErr: "conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{SameDest: tt.sameDest}
			gotSrc, gotDest, err := resolveTargets(cfg, tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, src, gotSrc)
			assert.Equal(t, tt.wantDest, gotDest)
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "***", maskKey("abc"))
	assert.Equal(t, "******7890", maskKey("1234567890"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

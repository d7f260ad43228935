package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
)

// These tests share the package-global registry and must not run in parallel.

func initTo(t *testing.T, cfg logging.Config) string {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "tinysweep.log")
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	require.NoError(t, logging.Init(cfg))
	t.Cleanup(func() { _ = logging.Close() })
	return cfg.Path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		cfg     logging.Config
		wantErr bool
	}{
		{name: "defaults", cfg: logging.Config{Level: "info"}},
		{name: "debug", cfg: logging.Config{Level: "debug"}},
		{name: "components", cfg: logging.Config{Level: "info", Components: map[string]string{"pipeline": "debug"}}},
		{name: "console", cfg: logging.Config{Level: "info", ConsoleLevel: "warn"}},
		{name: "bad level", cfg: logging.Config{Level: "loud"}, wantErr: true},
		{name: "bad component level", cfg: logging.Config{Level: "info", Components: map[string]string{"tinify": "x"}}, wantErr: true},
		{name: "bad console level", cfg: logging.Config{Level: "info", ConsoleLevel: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Path = filepath.Join(t.TempDir(), "test.log")
			err := logging.Init(tt.cfg)
			defer func() { _ = logging.Close() }()
			if tt.wantErr {
				assert.ErrorIs(t, err, logging.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGet_ReturnsSameLogger(t *testing.T) {
	initTo(t, logging.Config{})

	a := logging.Get("pipeline")
	b := logging.Get("pipeline")
	c := logging.Get("tinify")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "tinify", c.Component())
}

func TestLogger_WritesToFile(t *testing.T) {
	path := initTo(t, logging.Config{Level: "info"})

	logger := logging.Get("pipeline")
	logger.Info("compressed", "path", "icons/logo.png")
	logger.Debug("hidden")
	logger.With("run", 1).Warn("persist failed")

	content := readLog(t, path)
	assert.Contains(t, content, "compressed")
	assert.Contains(t, content, "icons/logo.png")
	assert.Contains(t, content, "pipeline")
	assert.Contains(t, content, "persist failed")
	assert.Contains(t, content, "run=1")
	assert.NotContains(t, content, "hidden")
}

func TestComponentLevelOverride(t *testing.T) {
	path := initTo(t, logging.Config{
		Level:      "warn",
		Components: map[string]string{"tinify": "debug"},
	})

	logging.Get("tinify").Debug("upload started")
	logging.Get("scanner").Info("scan started")

	content := readLog(t, path)
	assert.Contains(t, content, "upload started")
	assert.NotContains(t, content, "scan started")
}

func TestLoggerBeforeInitIsSilent(t *testing.T) {
	require.NoError(t, logging.Close())
	assert.NotPanics(t, func() {
		logging.Get("early").Info("dropped")
	})
}

func TestSubscribe(t *testing.T) {
	initTo(t, logging.Config{})

	ch := logging.Subscribe()
	logging.Get("writer").Warn("disk full")

	select {
	case e := <-ch:
		assert.Equal(t, "writer", e.Component)
		assert.Equal(t, logging.LevelWarn, e.Level)
		assert.Equal(t, "disk full", e.Message)
		assert.False(t, e.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}

	logging.Unsubscribe(ch)
	logging.Get("writer").Warn("after unsubscribe")

	select {
	case e := <-ch:
		t.Fatalf("unexpected entry after unsubscribe: %+v", e)
	default:
	}
}

func TestCloseClosesSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, logging.Init(logging.Config{Level: "info", Path: path}))

	ch := logging.Subscribe()
	require.NoError(t, logging.Close())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.Level
		err  bool
	}{
		{in: "debug", want: logging.LevelDebug},
		{in: "INFO", want: logging.LevelInfo},
		{in: "warning", want: logging.LevelWarn},
		{in: " error ", want: logging.LevelError},
		{in: "trace", want: logging.LevelInfo, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, logging.ErrInvalidLevel)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLogPath(t *testing.T) {
	p := logging.DefaultLogPath()
	assert.True(t, strings.HasSuffix(p, filepath.Join("tinysweep", "tinysweep.log")))
}

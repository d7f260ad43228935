package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/filter"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/fingerprint"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// EnvPrefix prefixes every environment variable, e.g. TINYSWEEP_SIG_FILE.
const EnvPrefix = "TINYSWEEP"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	Key        string        `mapstructure:"key"`
	SigFile    string        `mapstructure:"sig_file"`
	CheckSigs  bool          `mapstructure:"check_sigs"`
	Force      string        `mapstructure:"force"`
	Ignore     string        `mapstructure:"ignore"`
	Log        bool          `mapstructure:"log"`
	SameDest   bool          `mapstructure:"same_dest"`
	KeepFailed bool          `mapstructure:"keep_failed"`
	Workers    int           `mapstructure:"workers"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Endpoint   string        `mapstructure:"endpoint"`
	Extensions []string      `mapstructure:"extensions"`
	Exclude    []string      `mapstructure:"exclude"`
	Output     string        `mapstructure:"output"`

	Cache struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"cache"`

	Watch struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`

	Manifest struct {
		Enabled       bool   `mapstructure:"enabled"`
		Path          string `mapstructure:"path"`
		RetentionDays int    `mapstructure:"retention_days"`
	} `mapstructure:"manifest"`

	Logging LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is an explicit config file. Empty searches the default locations.
	File string

	// Flags are bound by name: "sig-file" sets sig_file. Only flags the
	// user changed override file and environment values.
	Flags *pflag.FlagSet
}

// Load loads configuration from file, environment and flags.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/tinysweep/config.yaml
//   - $HOME/.config/tinysweep/config.yaml
//
// Environment variables are prefixed with TINYSWEEP_. TINYPNG_KEY and
// TINYPNG_SIGS are accepted for key and check_sigs.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("key", EnvPrefix+"_KEY", "TINYPNG_KEY")
	_ = v.BindEnv("check_sigs", EnvPrefix+"_CHECK_SIGS", "TINYPNG_SIGS")

	setDefaults(v)

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	for _, p := range []*string{&cfg.SigFile, &cfg.Manifest.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	cfg.Extensions = filter.NormalizeExtensions(cfg.Extensions)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("key", "")
	v.SetDefault("sig_file", "")
	v.SetDefault("check_sigs", false)
	v.SetDefault("force", DefaultRuleValue)
	v.SetDefault("ignore", DefaultRuleValue)
	v.SetDefault("log", false)
	v.SetDefault("same_dest", false)
	v.SetDefault("keep_failed", false)
	v.SetDefault("workers", 0)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("endpoint", "")
	v.SetDefault("extensions", DefaultExtensions)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("output", DefaultOutput)

	v.SetDefault("cache.backend", DefaultBackend)
	v.SetDefault("watch.debounce", DefaultDebounce)

	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", ManifestDir())
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"pipeline": "info",
		"tinify":   "info",
		"watcher":  "warn",
	})
}

// knownKeys are the top-level keys a flag may bind to.
var knownKeys = map[string]struct{}{
	"key": {}, "sig_file": {}, "check_sigs": {}, "force": {}, "ignore": {},
	"log": {}, "same_dest": {}, "keep_failed": {}, "workers": {}, "timeout": {},
	"endpoint": {}, "extensions": {}, "exclude": {}, "output": {},
}

func isKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// Validate checks settings needed to compress. Problems are reported as
// configuration errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return types.ConfigError("missing API key")
	}
	if c.CheckSigs && c.SigFile == "" {
		return types.ConfigError("sigFile required for checking signatures")
	}
	switch c.Cache.Backend {
	case "", fingerprint.KindJSON, fingerprint.KindBadger:
	default:
		return types.ConfigError(fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Workers < 0 {
		return types.ConfigError("workers must not be negative")
	}
	if c.Timeout < 0 {
		return types.ConfigError("timeout must not be negative")
	}
	for _, w := range c.Warnings() {
		logging.Get("cli").Warn(w)
	}
	if _, err := c.LoggingConfig(); err != nil {
		return &types.Error{Kind: types.KindConfiguration, Message: "invalid logging settings", Err: err}
	}
	return nil
}

// Warnings lists settings that are accepted but will not behave as written.
// A malformed force or ignore glob matches nothing.
func (c *Config) Warnings() []string {
	var out []string
	for _, f := range []struct{ name, value string }{{"force", c.Force}, {"ignore", c.Ignore}} {
		if !filter.ParseRule(f.value).Valid() {
			out = append(out, fmt.Sprintf("invalid %s pattern %q matches no files", f.name, f.value))
		}
	}
	return out
}

// PipelineConfig converts c into the pipeline's per-run configuration.
// workers is used when c.Workers is zero.
func (c *Config) PipelineConfig(workers int) pipeline.Config {
	if c.Workers > 0 {
		workers = c.Workers
	}
	return pipeline.Config{
		Key:        c.Key,
		SigFile:    c.SigFile,
		CheckSigs:  c.CheckSigs,
		Backend:    c.Cache.Backend,
		Force:      filter.ParseRule(c.Force),
		Ignore:     filter.ParseRule(c.Ignore),
		Log:        c.Log,
		SameDest:   c.SameDest,
		KeepFailed: c.KeepFailed,
		Workers:    workers,
		Timeout:    c.Timeout,
		Endpoint:   c.Endpoint,
	}
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() (logging.Config, error) {
	out := logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		Components: c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
	}
	if out.Level != "" {
		if _, err := logging.ParseLevel(out.Level); err != nil {
			return out, err
		}
	}
	if c.Logging.Rotation.MaxSize != "" {
		size, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return out, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		out.Rotation.MaxSize = size
	}
	return out, nil
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "tinysweep"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "tinysweep"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/tinysweep.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "tinysweep")
}

// ManifestDir returns the default run history directory.
func ManifestDir() string {
	return filepath.Join(DataDir(), "history")
}

// WriteDefault writes a commented default config file to path, or to
// ConfigPath when path is empty. An existing file is left alone and
// reported with created false.
func WriteDefault(path string) (string, bool, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return "", false, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(defaultTemplate, DefaultTimeout, DefaultOutput, DefaultBackend,
		DefaultDebounce, ManifestDir(), DefaultRetentionDays)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}

const defaultTemplate = `# tinysweep configuration

# API key for the compression service (or set TINYPNG_KEY)
key: ""

# Signature file. Setting it skips images unchanged since the last run.
sig_file: ""
check_sigs: false

# Glob patterns, or "true"/"false"
force: "false"
ignore: "false"

# Log every file at info level
log: false

# Overwrite sources in place
same_dest: false

# Copy originals through when compression fails
keep_failed: false

# Concurrent requests (0 = auto)
workers: 0
timeout: %s

extensions: [".png", ".jpg", ".jpeg"]
exclude: [".git", "node_modules"]

# Report format: pretty, plain, json, yaml
output: %s

cache:
  # json or badger
  backend: %s

watch:
  debounce: %s

manifest:
  enabled: true
  path: %s
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/tinysweep/tinysweep.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    pipeline: info
    tinify: info
    watcher: warn
`

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/output"
)

// Run flags, read directly rather than through config.
var (
	dryRun      bool
	interactive bool
)

// addPipelineFlags registers the flags that map onto config keys. A flag
// named "sig-file" overrides the "sig_file" setting when given.
func addPipelineFlags(fs *pflag.FlagSet) {
	fs.String("key", "", "TinyPNG API key (or TINYPNG_KEY)")
	fs.String("sig-file", "", "signature file; enables skipping unchanged images")
	fs.Bool("check-sigs", false, "require signature checking (needs --sig-file)")
	fs.StringP("force", "f", config.DefaultRuleValue, `glob of images compressed even when unchanged, or "true"`)
	fs.String("ignore", config.DefaultRuleValue, `glob of images left out entirely, or "true"`)
	fs.Bool("log", false, "log every file at info level")
	fs.Bool("same-dest", false, "overwrite source images in place")
	fs.Bool("keep-failed", false, "copy originals through when compression fails")
	fs.IntP("workers", "w", 0, "concurrent requests (0=auto)")
	fs.Duration("timeout", config.DefaultTimeout, "per-request timeout")
	fs.String("endpoint", "", "service endpoint override")
	fs.StringSlice("extensions", config.DefaultExtensions, "image extensions to compress")
	fs.StringSliceP("exclude", "e", config.DefaultExclusions, "exclude patterns (can be specified multiple times)")
	fs.StringP("output", "o", config.DefaultOutput, fmt.Sprintf("report format (%s)", strings.Join(output.Available(), ", ")))
}

// addRunFlags registers flags that only affect a single invocation.
func addRunFlags(fs *pflag.FlagSet, withInteractive bool) {
	fs.BoolVarP(&dryRun, "dry-run", "n", false, "compress but write nothing")
	if withInteractive {
		fs.BoolVarP(&interactive, "interactive", "i", false, "show live progress")
	}
}

// resolveTargets returns the source and destination from args. A single
// argument is only valid in same-destination mode.
func resolveTargets(cfg *config.Config, args []string) (string, string, error) {
	if len(args) == 0 {
		return "", "", fmt.Errorf("source directory required")
	}
	source := args[0]

	if len(args) == 1 {
		if !cfg.SameDest {
			return "", "", fmt.Errorf("destination required (or use --same-dest to compress in place)")
		}
		return source, "", nil
	}

	dest := args[1]
	if cfg.SameDest {
		src, err := resolveDir(source)
		if err != nil {
			return "", "", err
		}
		dst, err := resolveDir(dest)
		if err != nil || dst != src {
			return "", "", fmt.Errorf("--same-dest conflicts with a separate destination %q", dest)
		}
	}
	return source, dest, nil
}

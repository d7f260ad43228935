// Package config loads tinysweep settings from a YAML file, the environment
// and command-line flags.
package config

import "time"

// Default configuration values.
const (
	// DefaultTimeout bounds each request to the compression service.
	DefaultTimeout = 60 * time.Second

	// DefaultBackend is the signature store format.
	DefaultBackend = "json"

	// DefaultOutput is the report format.
	DefaultOutput = "pretty"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 30

	// DefaultDebounce is the watch mode quiet period.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultRuleValue is the force and ignore setting that matches nothing.
	DefaultRuleValue = "false"
)

// DefaultExtensions are the image types picked up from a source tree.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg"}

// DefaultExclusions are directory names never descended into.
var DefaultExclusions = []string{".git", "node_modules"}

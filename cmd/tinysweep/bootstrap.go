package main

import (
	"fmt"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
)

// loggingConfig derives the logging setup for one invocation. The console
// shows warnings by default, errors only when quiet and everything when
// verbose.
func loggingConfig(cfg *config.Config, verbose, quiet, interactive bool) (logging.Config, error) {
	lc, err := cfg.LoggingConfig()
	if err != nil {
		return lc, fmt.Errorf("invalid logging configuration: %w", err)
	}
	if lc.Level == "" {
		lc.Level = "info"
	}

	switch {
	case quiet:
		lc.ConsoleLevel = "error"
	case verbose:
		lc.ConsoleLevel = "debug"
		lc.Level = "debug"
		lc.Components = nil
	default:
		lc.ConsoleLevel = "warn"
	}
	lc.Interactive = interactive
	return lc, nil
}

// initializeLogging starts file and console logging.
func initializeLogging(cfg *config.Config, verbose, quiet, interactive bool) error {
	lc, err := loggingConfig(cfg, verbose, quiet, interactive)
	if err != nil {
		return err
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

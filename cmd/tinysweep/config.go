package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage tinysweep configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/tinysweep/config.yaml (if set)
  2. ~/.config/tinysweep/config.yaml

Environment variables override config file settings using the TINYSWEEP_ prefix:
  TINYSWEEP_SIG_FILE=.tinypng-sigs
  TINYSWEEP_WORKERS=8
  TINYSWEEP_CACHE_BACKEND=badger

TINYPNG_KEY and TINYPNG_SIGS are also accepted. Flags override everything.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging file, environment and flags.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// maskKey hides all but the last four characters of an API key.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	if cfg.File != "" {
		fmt.Printf("Config file: %s\n\n", cfg.File)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("key:                      %s\n", maskKey(cfg.Key))
	fmt.Printf("sig_file:                 %s\n", cfg.SigFile)
	fmt.Printf("check_sigs:               %t\n", cfg.CheckSigs)
	fmt.Printf("force:                    %s\n", cfg.Force)
	fmt.Printf("ignore:                   %s\n", cfg.Ignore)
	fmt.Printf("log:                      %t\n", cfg.Log)
	fmt.Printf("same_dest:                %t\n", cfg.SameDest)
	fmt.Printf("keep_failed:              %t\n", cfg.KeepFailed)
	fmt.Printf("workers:                  %d\n", cfg.Workers)
	fmt.Printf("timeout:                  %s\n", cfg.Timeout)
	fmt.Printf("endpoint:                 %s\n", cfg.Endpoint)
	fmt.Printf("extensions:               %v\n", cfg.Extensions)
	fmt.Printf("exclude:                  %v\n", cfg.Exclude)
	fmt.Printf("output:                   %s\n", cfg.Output)
	fmt.Printf("cache.backend:            %s\n", cfg.Cache.Backend)
	fmt.Printf("watch.debounce:           %s\n", cfg.Watch.Debounce)
	fmt.Printf("manifest.enabled:         %t\n", cfg.Manifest.Enabled)
	fmt.Printf("manifest.path:            %s\n", cfg.Manifest.Path)
	fmt.Printf("manifest.retention_days:  %d\n", cfg.Manifest.RetentionDays)
	fmt.Printf("logging.level:            %s\n", cfg.Logging.Level)
	logPath := cfg.Logging.Path
	if logPath == "" {
		logPath = logging.DefaultLogPath()
	}
	fmt.Printf("logging.path:             %s\n", logPath)

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, config.EnvPrefix+"_") && name != "TINYPNG_KEY" && name != "TINYPNG_SIGS" {
			continue
		}
		if strings.HasSuffix(name, "_KEY") {
			value = maskKey(value)
		}
		fmt.Printf("%s=%s\n", name, value)
		anyOverrides = true
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\nWarning: %v\n", err)
	}
	for _, w := range cfg.Warnings() {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, _, err := config.WriteDefault(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	logging.Get("cli").Debug("opening config", "path", configPath, "editor", editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, created, err := config.WriteDefault(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !created {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'tinysweep config edit' to modify it.")
		return nil
	}
	printInfo("Created default config file: %s", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if appConfig.File != "" {
		fmt.Println(appConfig.File)
		return nil
	}
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(configPath)
	return nil
}

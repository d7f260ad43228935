package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
)

var (
	cfgFile string
	verbose bool
	quiet   bool

	// appConfig is loaded before any command runs.
	appConfig *config.Config

	rootCmd = &cobra.Command{
		Use:   "tinysweep <source> [dest]",
		Short: "Compress PNG and JPEG images through the TinyPNG service",
		Long: `tinysweep compresses every PNG and JPEG image under a source directory
through the TinyPNG web service and writes the results to a destination.

With a signature file, images whose content has not changed since the last
run are skipped without contacting the service.

Examples:
  tinysweep assets build/assets              # Compress into another tree
  tinysweep --same-dest assets               # Compress in place
  tinysweep --sig-file .tinypng-sigs assets build
  tinysweep -f 'icons/**' --sig-file .sigs src dist
  tinysweep watch --same-dest assets         # Recompress on change
  tinysweep sigs show --sig-file .tinypng-sigs`,
		Args:               cobra.RangeArgs(1, 2),
		PersistentPreRunE:  initializeCommand,
		PersistentPostRunE: closeLogging,
		RunE:               runCompress,
		SilenceUsage:       true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/tinysweep/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")

	addPipelineFlags(rootCmd.PersistentFlags())
	addRunFlags(rootCmd.Flags(), true)
}

// initializeCommand loads configuration and starts logging.
func initializeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoadOptions{File: cfgFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	appConfig = cfg

	interactive, _ := cmd.Flags().GetBool("interactive")
	if err := initializeLogging(cfg, verbose, quiet, interactive); err != nil {
		return err
	}

	if cfg.File != "" {
		logging.Get("cli").Debug("config loaded", "file", cfg.File)
	}
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	return logging.Close()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

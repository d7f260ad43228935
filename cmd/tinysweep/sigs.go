package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/fingerprint"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

var sigsCmd = &cobra.Command{
	Use:   "sigs",
	Short: "Inspect and manage stored signatures",
	Long: `Signatures record the content hash of every image tinysweep has seen, keyed
by its path relative to the source. An image whose hash still matches is
skipped on the next run.

The store is selected by sig_file and cache.backend (json or badger).`,
}

var sigsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored signatures",
	RunE:  runSigsShow,
}

var sigsForgetCmd = &cobra.Command{
	Use:   "forget <path>...",
	Short: "Drop signatures so the images are compressed again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSigsForget,
}

var sigsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every stored signature",
	RunE:  runSigsClear,
}

var sigsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show where signatures are stored",
	RunE:  runSigsPath,
}

func init() {
	sigsCmd.AddCommand(sigsShowCmd)
	sigsCmd.AddCommand(sigsForgetCmd)
	sigsCmd.AddCommand(sigsClearCmd)
	sigsCmd.AddCommand(sigsPathCmd)
	rootCmd.AddCommand(sigsCmd)
}

// openSignatures loads the configured store into a table.
func openSignatures(cmd *cobra.Command) (*fingerprint.Table, fingerprint.Backend, error) {
	if appConfig.SigFile == "" {
		return nil, nil, types.ConfigError("no signature file configured (set sig_file or --sig-file)")
	}
	backend, err := fingerprint.Open(appConfig.Cache.Backend, appConfig.SigFile)
	if err != nil {
		return nil, nil, err
	}
	table := fingerprint.NewTable()
	table.Load(cmd.Context(), backend)
	return table, backend, nil
}

func runSigsShow(cmd *cobra.Command, args []string) error {
	table, backend, err := openSignatures(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	if table.Len() == 0 {
		printInfo("No signatures stored in %s", backend.Location())
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DIGEST\tPATH")
	for _, p := range table.Paths() {
		digest, _ := table.Get(p)
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", digest, p)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printInfo("\n%d signatures in %s", table.Len(), backend.Location())
	return nil
}

func runSigsForget(cmd *cobra.Command, args []string) error {
	table, backend, err := openSignatures(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	removed := 0
	for _, p := range args {
		if table.Delete(filepath.ToSlash(p)) {
			removed++
		} else {
			printError("no signature for %s", p)
		}
	}
	if removed == 0 {
		return nil
	}
	if !table.Persist(cmd.Context(), backend) {
		return fmt.Errorf("failed to save signatures to %s", backend.Location())
	}
	printInfo("Removed %d signatures.", removed)
	return nil
}

func runSigsClear(cmd *cobra.Command, args []string) error {
	table, backend, err := openSignatures(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	count := table.Len()
	table.Reset()
	if !table.Persist(cmd.Context(), backend) {
		return fmt.Errorf("failed to save signatures to %s", backend.Location())
	}
	printInfo("Cleared %d signatures from %s", count, backend.Location())
	return nil
}

func runSigsPath(cmd *cobra.Command, args []string) error {
	if appConfig.SigFile == "" {
		return types.ConfigError("no signature file configured (set sig_file or --sig-file)")
	}
	backend := appConfig.Cache.Backend
	if backend == "" {
		backend = fingerprint.KindJSON
	}
	fmt.Printf("%s (%s)\n", appConfig.SigFile, backend)
	return nil
}

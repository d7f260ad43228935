package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/manifest"
)

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "View run history",
	Long: `View the history of compression runs.

Every run that touched at least one image is recorded with its per-file
outcome and savings. Entries older than manifest.retention_days are pruned
automatically. Pass an ID to show one run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific run",
	Long:  `Display one run by its ID. A unique prefix of the ID is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func getManifest() (*manifest.Manifest, error) {
	dir := appConfig.Manifest.Path
	if dir == "" {
		dir = config.ManifestDir()
	}
	m, err := manifest.New(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize manifest: %w", err)
	}
	return m, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return runHistoryShow(cmd, args)
	}

	m, err := getManifest()
	if err != nil {
		return err
	}

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'tinysweep <source> [dest]' to compress images.")
		return nil
	}

	fmt.Printf("\n%-48s  %-8s  %-6s  %-6s  %-10s\n", "ID", "TYPE", "FILES", "FAILED", "SAVED")
	fmt.Println(strings.Repeat("-", 86))

	for _, entry := range entries {
		saved := entry.Summary.BytesBefore - entry.Summary.BytesAfter
		fmt.Printf("%-48s  %-8s  %-6d  %-6d  %-10s\n",
			truncateString(entry.ID, 48),
			entry.Operation,
			entry.Summary.TotalFiles,
			entry.Summary.Failed,
			humanize.Bytes(uint64(max(saved, 0))),
		)
	}

	fmt.Println(strings.Repeat("-", 86))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'tinysweep history show <id>' for details on a specific entry.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return err
	}

	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	s := entry.Summary
	fmt.Println("\nRun Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:          %s\n", entry.ID)
	fmt.Printf("Timestamp:   %s (%s)\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"), humanize.Time(entry.Timestamp))
	fmt.Printf("Operation:   %s\n", entry.Operation)
	fmt.Printf("Source:      %s\n", entry.Source)
	fmt.Printf("Destination: %s\n", entry.Destination)
	fmt.Printf("Files:       %d (compressed %d, skipped %d, failed %d)\n",
		s.TotalFiles, s.Compressed, s.Skipped, s.Failed)
	fmt.Printf("Size:        %s -> %s (%.1f%% saved)\n",
		humanize.Bytes(uint64(s.BytesBefore)), humanize.Bytes(uint64(s.BytesAfter)), s.SavingsPercent)
	if s.CompressionCount > 0 {
		fmt.Printf("Service:     %d compressions this month\n", s.CompressionCount)
	}

	if len(entry.Files) > 0 {
		fmt.Println("\nFiles:")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-11s  %-10s  %-10s  %s\n", "STATUS", "BEFORE", "AFTER", "PATH")
		fmt.Println(strings.Repeat("-", 60))

		limit := min(len(entry.Files), 50)
		for _, file := range entry.Files[:limit] {
			fmt.Printf("%-11s  %-10s  %-10s  %s\n",
				file.Outcome,
				humanize.Bytes(uint64(file.SizeBefore)),
				humanize.Bytes(uint64(file.SizeAfter)),
				file.Path)
			if file.Error != "" {
				fmt.Printf("%-11s  %s\n", "", file.Error)
			}
		}

		if len(entry.Files) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Files)-limit)
		}
	}
	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return err
	}

	retentionDays := appConfig.Manifest.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := m.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d entries.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

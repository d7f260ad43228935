package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/tinysweep/cmd/tinysweep/tui"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/manifest"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/output"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
)

var compressCmd = &cobra.Command{
	Use:   "compress <source> [dest]",
	Short: "Compress every image under source once",
	Long: `Compress walks the source tree, sends every PNG and JPEG image to the
compression service and writes the results under dest, keeping relative paths.
Running tinysweep with paths and no subcommand does the same.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCompress,
}

func init() {
	addRunFlags(compressCmd.Flags(), true)
	rootCmd.AddCommand(compressCmd)
}

// runCompress compresses every image under the source once.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	formatter, err := output.Get(cfg.Output)
	if err != nil {
		return err
	}

	source, dest, err := resolveTargets(cfg, args)
	if err != nil {
		return err
	}

	r, err := newRunner(cfg, source, dest, dryRun)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *runResult
	if interactive {
		res, err = r.runInteractive()
	} else {
		res, err = r.run(ctx, r.scanAll(), nil)
	}
	if res == nil {
		return err
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	r.record(manifest.OpCompress, res)

	if err := printReport(formatter, cfg.Output, r.report(res)); err != nil {
		return err
	}

	if res.Interrupted {
		return fmt.Errorf("interrupted")
	}
	if res.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d images failed to compress", res.Summary.Failed, res.Summary.Total)
	}
	return nil
}

// runInteractive runs one full pass behind the progress view.
func (r *runner) runInteractive() (*runResult, error) {
	done := make(chan *runResult, 1)

	_, err := tui.Run(tui.Options{
		Source:  r.source,
		Dest:    r.dest,
		DryRun:  r.dryRun,
		Scanned: r.scanned,
		Run: func(ctx context.Context, onResult func(pipeline.Result)) (pipeline.Summary, error) {
			res, err := r.run(ctx, r.scanAll(), onResult)
			done <- res
			return res.Summary, err
		},
	})

	select {
	case res := <-done:
		return res, err
	default:
		return nil, err
	}
}

// printReport writes the report to stdout. Quiet mode suppresses the
// human formats only.
func printReport(formatter output.Formatter, format string, rep *output.Report) error {
	if quiet && (format == "pretty" || format == "plain") {
		return nil
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, rep); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

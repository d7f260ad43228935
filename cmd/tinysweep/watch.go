package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/manifest"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/output"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/watcher"
)

var (
	watchDebounce  time.Duration
	watchNoInitial bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <source> [dest]",
	Short: "Compress images as they change",
	Long: `Watch compresses the source tree once, then keeps running and compresses
images whenever they are created or modified. Changes are batched until the
tree has been quiet for the debounce interval.

Writes made by tinysweep itself are recognised and not compressed again.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a batch runs (default from config)")
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip the initial full pass")
	addRunFlags(watchCmd.Flags(), false)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if watchDebounce > 0 {
		cfg.Watch.Debounce = watchDebounce
	}

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
	r.track = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := watcher.Options{
		Root:       r.source,
		Extensions: cfg.Extensions,
		Exclude:    cfg.Exclude,
		Debounce:   cfg.Watch.Debounce,
	}
	if r.dest != r.source {
		opts.SkipPaths = []string{r.dest}
	}
	w, err := watcher.New(opts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	batch := func(ctx context.Context, feed feedFunc) {
		res, err := r.run(ctx, feed, nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			printError("%v", err)
		}
		if res == nil || res.Summary.Total == 0 {
			return
		}
		r.record(manifest.OpWatch, res)
		if err := printReport(formatter, cfg.Output, r.report(res)); err != nil {
			printError("%v", err)
		}
	}

	if !watchNoInitial {
		batch(ctx, r.scanAll())
	}
	if ctx.Err() != nil {
		return nil
	}

	printInfo("Watching %s (%d directories). Press ctrl+c to stop.", w.Root(), w.Watched())
	err = w.Run(ctx, func(ctx context.Context, paths []string) {
		batch(ctx, r.scanPaths(paths))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/config"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/fingerprint"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/manifest"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/output"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/scanner"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/tuner"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/writer"
)

// feedFunc sends records to out and closes it.
type feedFunc func(ctx context.Context, out chan<- *types.FileRecord) error

// runner drives source records through the pipeline into the destination.
// One runner serves every batch of a watch session.
type runner struct {
	cfg    *config.Config
	source string
	dest   string
	dryRun bool
	tune   tuner.OptimalConfig

	pipe   *pipeline.Pipeline
	writer *writer.Writer
	logger *logging.Logger

	// current is the active scanner, read by the progress view.
	mu      sync.Mutex
	current *scanner.Scanner

	// written maps each file this runner wrote to the digest of what it
	// wrote, so watch mode can drop the change events of its own writes.
	track   bool
	written map[string]types.Fingerprint
}

// runResult is what one pass produced.
type runResult struct {
	Results     []pipeline.Result
	Summary     pipeline.Summary
	Warnings    []string
	WriteErrors *multierror.Error
	Interrupted bool
}

// newRunner resolves paths and builds the pipeline. dest empty, or equal
// to source, means same-destination mode.
func newRunner(cfg *config.Config, source, dest string, dryRun bool, opts ...pipeline.Option) (*runner, error) {
	absSource, err := resolveDir(source)
	if err != nil {
		return nil, err
	}

	absDest := absSource
	if dest != "" {
		expanded, err := config.ExpandPath(dest)
		if err != nil {
			return nil, err
		}
		if absDest, err = filepath.Abs(expanded); err != nil {
			return nil, fmt.Errorf("failed to resolve destination: %w", err)
		}
	}
	if absDest == absSource {
		cfg.SameDest = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tune := tuner.Auto(cfg.Workers)
	pcfg := cfg.PipelineConfig(tune.Requests)
	pcfg.NoPersist = dryRun
	pipe, err := pipeline.New(pcfg, opts...)
	if err != nil {
		return nil, err
	}

	w, err := writer.New(absDest, writer.WithDryRun(dryRun))
	if err != nil {
		_ = pipe.Close()
		return nil, err
	}

	r := &runner{
		cfg:     cfg,
		source:  absSource,
		dest:    absDest,
		dryRun:  dryRun,
		tune:    tune,
		pipe:    pipe,
		writer:  w,
		logger:  logging.Get("cli"),
		written: make(map[string]types.Fingerprint),
	}
	r.logger.Debug("runner ready",
		"source", absSource,
		"dest", absDest,
		"requests", tune.Requests,
		"gating", pipe.Gating())
	return r, nil
}

func resolveDir(path string) (string, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path does not exist: %s", abs)
		}
		return "", fmt.Errorf("cannot access path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", abs)
	}
	return abs, nil
}

// Close releases the signature store.
func (r *runner) Close() error {
	return r.pipe.Close()
}

// scanOptions are the scanner settings for the source tree. A destination
// nested inside the source is never scanned.
func (r *runner) scanOptions() scanner.Options {
	opts := scanner.Options{
		Root:       r.source,
		Extensions: r.cfg.Extensions,
		Exclude:    r.cfg.Exclude,
		Workers:    r.tune.ScanWorkers,
	}
	if r.dest != r.source {
		opts.SkipPaths = []string{r.dest}
	}
	return opts
}

// scanAll feeds every image under the source.
func (r *runner) scanAll() feedFunc {
	return func(ctx context.Context, out chan<- *types.FileRecord) error {
		s := scanner.New(r.scanOptions())
		r.mu.Lock()
		r.current = s
		r.mu.Unlock()

		stats, err := s.Scan(ctx, out)
		if err != nil {
			return err
		}
		for _, e := range stats.Errors {
			r.logger.Warn("skipped unreadable entry", "path", e.Path, "error", e.Err)
		}
		return nil
	}
}

// scanPaths feeds the given changed files.
func (r *runner) scanPaths(paths []string) feedFunc {
	return func(ctx context.Context, out chan<- *types.FileRecord) error {
		defer close(out)
		records, errs := scanner.Load(r.source, paths)
		for _, e := range errs {
			r.logger.Warn("skipped changed file", "path", e.Path, "error", e.Err)
		}
		for _, rec := range records {
			if r.echo(rec) {
				r.logger.Debug("ignoring own write", "path", rec.Relative)
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
}

// remember records that target now holds content.
func (r *runner) remember(target string, content []byte) {
	r.mu.Lock()
	r.written[target] = fingerprint.Hash(content)
	r.mu.Unlock()
}

// echo reports whether rec is exactly what this runner last wrote to its
// path. A match is consumed.
func (r *runner) echo(rec *types.FileRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	digest, ok := r.written[rec.Path]
	if !ok {
		return false
	}
	delete(r.written, rec.Path)
	return digest == fingerprint.Hash(rec.Contents)
}

// scanned returns how many files the active scan has found so far.
func (r *runner) scanned() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return r.current.Progress().Files
}

// run pushes feed through the pipeline and writes every emitted record.
// onResult, when set, sees each result as it completes.
func (r *runner) run(ctx context.Context, feed feedFunc, onResult func(pipeline.Result)) (*runResult, error) {
	records := make(chan *types.FileRecord, r.tune.QueueSize)
	results := make(chan pipeline.Result, r.tune.QueueSize)

	feedErr := make(chan error, 1)
	go func() { feedErr <- feed(ctx, records) }()

	var (
		summary pipeline.Summary
		runErr  error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		summary, runErr = r.pipe.Run(ctx, records, results)
	}()

	out := &runResult{}
	for res := range results {
		if res.Emit() {
			target, err := r.writer.Write(res.Record)
			if err != nil {
				out.WriteErrors = multierror.Append(out.WriteErrors, err)
				r.logger.Error("write failed", "path", res.Path(), "error", err)
			} else if r.track && !r.dryRun {
				r.remember(target, res.Record.Contents)
			}
		}
		out.Results = append(out.Results, res)
		if onResult != nil {
			onResult(res)
		}
	}
	<-done
	out.Summary = summary

	scanErr := <-feedErr
	if ctx.Err() != nil {
		out.Interrupted = true
		return out, ctx.Err()
	}
	if scanErr != nil {
		return out, scanErr
	}
	if runErr != nil {
		return out, runErr
	}

	if out.WriteErrors != nil {
		for _, err := range out.WriteErrors.Errors {
			out.Warnings = append(out.Warnings, err.Error())
		}
	}
	return out, nil
}

// report builds the printable report for res.
func (r *runner) report(res *runResult) *output.Report {
	rep := output.NewReport(r.source, r.dest, res.Results, res.Summary)
	rep.DryRun = r.dryRun
	rep.Interrupted = res.Interrupted
	rep.Warnings = res.Warnings
	return rep
}

// record appends res to the run history unless disabled or dry.
func (r *runner) record(op manifest.OperationType, res *runResult) {
	if r.dryRun || !r.cfg.Manifest.Enabled || res.Summary.Total == 0 {
		return
	}
	m, err := manifest.New(r.cfg.Manifest.Path)
	if err != nil {
		r.logger.Warn("history disabled", "error", err)
		return
	}
	entry, err := m.Log(manifest.FromResults(op, r.source, r.dest, res.Results, res.Summary))
	if err != nil {
		r.logger.Warn("failed to record history", "error", err)
		return
	}
	if removed, err := m.Cleanup(r.cfg.Manifest.RetentionDays); err == nil && removed > 0 {
		r.logger.Debug("pruned history", "removed", removed)
	}
	r.logger.Debug("recorded history", "id", entry.ID)
}

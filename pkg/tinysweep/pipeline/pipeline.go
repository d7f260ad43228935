// Package pipeline runs file records through the signature cache and the
// compression service. Each record reaches exactly one Outcome; records are
// processed concurrently on a bounded pool, and the signature store is
// written once when the input is exhausted.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/fingerprint"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/tinify"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/types"
)

// Pipeline is a configured run. A Pipeline may Run several times (watch
// mode); the signature store is loaded on the first run only.
type Pipeline struct {
	cfg        Config
	compressor tinify.Compressor
	httpClient tinify.HTTPClient
	backend    fingerprint.Backend
	ownBackend bool
	table      *fingerprint.Table
	locks      *pathLocks
	loadOnce   sync.Once
	logger     *logging.Logger
}

// New validates cfg and builds a pipeline. Configuration problems are
// returned as *types.Error of kind KindConfiguration.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, types.ConfigError("missing API key")
	}

	p := &Pipeline{
		cfg:    cfg,
		locks:  newPathLocks(),
		logger: logging.Get("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.CheckSigs && cfg.SigFile == "" && p.backend == nil {
		return nil, types.ConfigError("sigFile required for checking signatures")
	}

	if p.cfg.Workers <= 0 {
		p.cfg.Workers = DefaultWorkers
	}

	if p.compressor == nil {
		client, err := tinify.New(tinify.Options{
			Key:        cfg.Key,
			Endpoint:   cfg.Endpoint,
			Timeout:    cfg.Timeout,
			HTTPClient: p.httpClient,
		})
		if err != nil {
			return nil, err
		}
		p.logger.Debug("service client ready", "endpoint", client.Endpoint(), "workers", p.cfg.Workers)
		p.compressor = client
	}

	if p.backend == nil && cfg.SigFile != "" {
		backend, err := fingerprint.Open(cfg.Backend, cfg.SigFile)
		if err != nil {
			return nil, &types.Error{Kind: types.KindConfiguration, Message: "opening signature store", Err: err}
		}
		p.backend = backend
		p.ownBackend = true
	}

	if p.backend != nil && p.table == nil {
		p.table = fingerprint.NewTable()
	}

	return p, nil
}

// Gating reports whether the signature cache is in use.
func (p *Pipeline) Gating() bool {
	return p.backend != nil
}

// Table returns the signature table, or nil when gating is off.
func (p *Pipeline) Table() *fingerprint.Table {
	return p.table
}

// Close releases a signature store opened by New.
func (p *Pipeline) Close() error {
	if p.ownBackend && p.backend != nil {
		return p.backend.Close()
	}
	return nil
}

// Run reads records from in until it is closed and sends one Result per
// record to out, closing out on return. The caller must drain out.
//
// When ctx is cancelled no further records are started, the signature
// store is left untouched, and ctx.Err() is returned. Otherwise the store
// is persisted once (if anything changed) after every record finished.
func (p *Pipeline) Run(ctx context.Context, in <-chan *types.FileRecord, out chan<- Result) (Summary, error) {
	defer close(out)

	start := time.Now()
	if p.Gating() {
		p.loadOnce.Do(func() { p.table.Load(ctx, p.backend) })
	}

	var (
		mu      sync.Mutex
		summary Summary
	)

	workers := pool.New().WithMaxGoroutines(p.cfg.Workers)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case rec, ok := <-in:
			if !ok {
				break loop
			}
			if rec == nil {
				continue
			}
			workers.Go(func() {
				res := p.process(ctx, rec)

				mu.Lock()
				summary.add(res)
				mu.Unlock()

				out <- res
			})
		}
	}
	workers.Wait()

	summary.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		p.logger.Warn("run aborted, signatures not persisted", "error", err, "processed", summary.Total)
		return summary, err
	}

	if p.Gating() && !p.cfg.NoPersist {
		summary.Persisted = p.table.Persist(ctx, p.backend)
	}

	p.logger.Info("run finished",
		"total", summary.Total,
		"compressed", summary.Compressed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"saved", types.FormatSize(summary.Saved()),
		"elapsed", summary.Elapsed)
	return summary, nil
}

// Process runs a fixed batch of records. Results come back in completion
// order.
func (p *Pipeline) Process(ctx context.Context, records []*types.FileRecord) ([]Result, Summary, error) {
	in := make(chan *types.FileRecord)
	out := make(chan Result, len(records))

	go func() {
		defer close(in)
		for _, rec := range records {
			select {
			case in <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		summary Summary
		err     error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		summary, err = p.Run(ctx, in, out)
	}()

	results := make([]Result, 0, len(records))
	for res := range out {
		results = append(results, res)
	}
	<-done
	return results, summary, err
}

// process takes one record to its terminal outcome.
func (p *Pipeline) process(ctx context.Context, rec *types.FileRecord) Result {
	start := time.Now()
	res := p.decide(ctx, rec)
	res.Elapsed = time.Since(start)
	p.report(res)
	return res
}

func (p *Pipeline) decide(ctx context.Context, rec *types.FileRecord) Result {
	size := rec.Size()
	res := Result{Record: rec, InputSize: size, OutputSize: size}

	if rec.IsEmpty() {
		res.Outcome = OutcomePassthrough
		res.Forward = true
		return res
	}

	if p.cfg.Ignore.Matches(rec.Relative) {
		res.Outcome = OutcomeIgnored
		return res
	}

	if rec.IsStream() {
		res.Outcome = OutcomeFailed
		res.Err = &types.Error{
			Kind:    types.KindUnsupportedInput,
			Path:    rec.Relative,
			Message: "streaming content unsupported",
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	unlock := p.locks.lock(rec.Relative)
	defer unlock()

	var digest types.Fingerprint
	if p.Gating() {
		if p.cfg.Force.Matches(rec.Relative) {
			digest = fingerprint.Hash(rec.Contents)
		} else {
			var hit bool
			hit, digest = p.table.Compare(rec.Relative, rec.Contents)
			if hit {
				skipped := rec.WithContents(rec.Contents)
				skipped.Skipped = true
				res.Record = skipped
				res.Outcome = OutcomeSkipped
				// The destination already holds this content.
				res.Forward = !p.cfg.SameDest
				return res
			}
		}
	}

	compressed, err := p.compressor.Compress(ctx, rec.Relative, rec.Contents)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Forward = p.cfg.KeepFailed
		return res
	}

	if p.Gating() {
		if p.cfg.SameDest {
			digest = fingerprint.Hash(compressed.Content)
		}
		p.table.Update(rec.Relative, digest)
	}

	res.Record = rec.WithContents(compressed.Content)
	res.Outcome = OutcomeCompressed
	res.Forward = true
	res.OutputSize = int64(len(compressed.Content))
	res.CompressionCount = compressed.CompressionCount
	return res
}

func (p *Pipeline) report(res Result) {
	log := p.logger.With("path", res.Path())
	info := log.Debug
	if p.cfg.Log {
		info = log.Info
	}

	switch res.Outcome {
	case OutcomeIgnored:
		log.Debug("ignored")
	case OutcomePassthrough:
		log.Debug("passthrough")
	case OutcomeSkipped:
		info("skipping", "forwarded", res.Forward)
	case OutcomeCompressed:
		info("compressed",
			"before", types.FormatSize(res.InputSize),
			"after", types.FormatSize(res.OutputSize),
			"elapsed", res.Elapsed)
	case OutcomeFailed:
		log.Error("compression failed", "error", res.Err, "forwarded", res.Forward)
	}
}

// pathLocks serializes work on the same relative path.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock acquires the lock for path and returns its release function.
func (l *pathLocks) lock(path string) func() {
	l.mu.Lock()
	pl, ok := l.locks[path]
	if !ok {
		pl = &pathLock{}
		l.locks[path] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, path)
		}
		l.mu.Unlock()
	}
}

package pipeline

import (
	"time"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/filter"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/fingerprint"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/tinify"
)

// DefaultWorkers is the request concurrency when Config.Workers is zero.
const DefaultWorkers = 4

// Config is the per-run configuration.
type Config struct {
	// Key is the service API key. Required.
	Key string

	// SigFile is where signatures are persisted. Setting it enables
	// cache-gating.
	SigFile string

	// CheckSigs explicitly requests cache-gating. It requires SigFile.
	CheckSigs bool

	// Backend is the fingerprint backend kind ("json" or "badger").
	Backend string

	// Force selects files that are compressed even on a cache hit.
	Force filter.Rule

	// Ignore selects files that are dropped before any processing.
	Ignore filter.Rule

	// Log reports every file at info level instead of debug.
	Log bool

	// SameDest means the output overwrites the source.
	SameDest bool

	// NoPersist keeps signature updates in memory only (dry runs).
	NoPersist bool

	// KeepFailed forwards the original content of failed files.
	KeepFailed bool

	// Workers bounds concurrent compressions.
	Workers int

	// Timeout per request for the built-in client.
	Timeout time.Duration

	// Endpoint overrides the service endpoint.
	Endpoint string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCompressor replaces the service client.
func WithCompressor(c tinify.Compressor) Option {
	return func(p *Pipeline) {
		p.compressor = c
	}
}

// WithHTTPClient sets the HTTP client used by the built-in service client.
func WithHTTPClient(c tinify.HTTPClient) Option {
	return func(p *Pipeline) {
		p.httpClient = c
	}
}

// WithBackend supplies the signature store and enables cache-gating.
// The pipeline does not close a supplied backend.
func WithBackend(b fingerprint.Backend) Option {
	return func(p *Pipeline) {
		p.backend = b
	}
}

// WithTable shares a signature table between pipelines.
func WithTable(t *fingerprint.Table) Option {
	return func(p *Pipeline) {
		p.table = t
	}
}

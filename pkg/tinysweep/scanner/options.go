// Package scanner walks a source tree with fastwalk and turns every image
// file into a buffered FileRecord for the pipeline. Records are streamed on
// a channel so compression can start while the walk is still running.
package scanner

import (
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/filter"
)

// DefaultExclusions are directory names never descended into.
var DefaultExclusions = []string{".git", "node_modules"}

// Options configures a Scanner.
type Options struct {
	// Root is the source directory. Records are relative to it.
	Root string

	// Extensions selects files by extension. Empty means filter.ImageExtensions.
	Extensions []string

	// Exclude holds glob patterns. A directory or file matching one (by
	// relative path or by name) is skipped.
	Exclude []string

	// SkipPaths are absolute paths skipped entirely, e.g. an output
	// directory nested inside Root.
	SkipPaths []string

	// Follow follows symbolic links.
	Follow bool

	// Workers is the fastwalk worker count. Zero lets fastwalk decide.
	Workers int

	// MaxSize skips files larger than this many bytes. Zero disables the limit.
	MaxSize int64
}

// DefaultOptions returns options for root with the default extension set
// and exclusions.
func DefaultOptions(root string) Options {
	return Options{
		Root:       root,
		Extensions: filter.ImageExtensions,
		Exclude:    DefaultExclusions,
	}
}

func (o *Options) normalize() {
	if len(o.Extensions) == 0 {
		o.Extensions = filter.ImageExtensions
	}
	o.Extensions = filter.NormalizeExtensions(o.Extensions)
	if o.Workers < 0 {
		o.Workers = 0
	}
}

// Package filter decides whether a file path is selected by a force or
// ignore rule. A rule is either a literal boolean ("always"/"never") or a
// glob pattern matched against the full path, with a second attempt against
// the path's final segment.
package filter

import (
	"path"
	"strings"
)

// ImageExtensions lists the file extensions the compression service accepts.
var ImageExtensions = []string{".png", ".jpg", ".jpeg"}

// Literal rule spellings accepted by ParseRule.
const (
	literalTrue  = "true"
	literalFalse = "false"
)

// HasExtension reports whether name ends with one of exts (case-insensitive).
// An empty exts list accepts every name.
func HasExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// NormalizeExtensions lowercases extensions and prefixes a dot where missing.
func NormalizeExtensions(exts []string) []string {
	normalized := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}

package filter

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Rule is a compiled force/ignore rule.
// The zero Rule never matches.
type Rule struct {
	pattern   string
	isLiteral bool
	literal   bool
	g         glob.Glob
}

// Never is the rule that matches nothing.
var Never = Rule{isLiteral: true, literal: false}

// Always is the rule that matches everything.
var Always = Rule{isLiteral: true, literal: true}

// Bool returns the literal rule for b.
func Bool(b bool) Rule {
	if b {
		return Always
	}
	return Never
}

// Glob compiles pattern into a rule. A pattern that fails to compile
// yields a rule that never matches.
func Glob(pattern string) Rule {
	r := Rule{pattern: pattern}
	g, err := glob.Compile(pattern, '/')
	if err == nil {
		r.g = g
	}
	return r
}

// ParseRule builds a rule from its configuration spelling.
// "" and "false" mean never, "true" means always, anything else is a glob.
func ParseRule(s string) Rule {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", literalFalse:
		return Never
	case literalTrue:
		return Always
	default:
		return Glob(s)
	}
}

// String returns the rule's configuration spelling.
func (r Rule) String() string {
	if r.isLiteral || r.pattern == "" {
		if r.literal {
			return literalTrue
		}
		return literalFalse
	}
	return r.pattern
}

// IsNever reports whether the rule can never match.
func (r Rule) IsNever() bool {
	if r.isLiteral || r.pattern == "" {
		return !r.literal
	}
	return r.g == nil
}

// Valid reports whether a glob rule compiled. Literal rules are always valid.
func (r Rule) Valid() bool {
	return r.isLiteral || r.pattern == "" || r.g != nil
}

// Matches evaluates the rule against p.
// Literal rules short-circuit. Glob rules are tried against the full
// slash-normalized path first, then once more against its basename, so
// "*.png" selects files at any depth while "icons/*.png" still has to
// match the full path.
func (r Rule) Matches(p string) bool {
	if r.isLiteral || r.pattern == "" {
		return r.literal
	}
	if r.g == nil {
		return false
	}

	p = filepath.ToSlash(p)
	if r.g.Match(p) {
		return true
	}
	return r.g.Match(path.Base(p))
}

// Matches is the function form of Rule.Matches.
func Matches(p string, rule Rule) bool {
	return rule.Matches(p)
}

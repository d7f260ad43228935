package filter

import (
	"testing"
)

func TestRule_Literals(t *testing.T) {
	paths := []string{"image.png", "a/b/c.jpg", "", "dir"}

	for _, p := range paths {
		if !Always.Matches(p) {
			t.Errorf("Always.Matches(%q) = false, want true", p)
		}
		if Never.Matches(p) {
			t.Errorf("Never.Matches(%q) = true, want false", p)
		}
	}

	var zero Rule
	if zero.Matches("image.png") {
		t.Error("zero Rule should never match")
	}
	if !zero.IsNever() {
		t.Error("zero Rule should report IsNever")
	}
}

func TestRule_Glob(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{name: "suffix glob matches", pattern: "*ge.png", path: "image.png", want: true},
		{name: "suffix glob rejects", pattern: "*go.png", path: "image.png", want: false},
		{name: "exact name", pattern: "image.png", path: "image.png", want: true},
		{name: "basename fallback at depth", pattern: "*.png", path: "icons/small/logo.png", want: true},
		{name: "full path with directory", pattern: "icons/*.png", path: "icons/logo.png", want: true},
		{name: "directory pattern needs full match", pattern: "icons/*.png", path: "other/logo.png", want: false},
		{name: "star does not cross separator", pattern: "icons/*.png", path: "icons/small/logo.png", want: false},
		{name: "super asterisk crosses separator", pattern: "icons/**.png", path: "icons/small/logo.png", want: true},
		{name: "character class", pattern: "logo[0-9].png", path: "assets/logo7.png", want: true},
		{name: "alternatives", pattern: "*.{jpg,jpeg}", path: "photo.jpeg", want: true},
		{name: "wrong extension", pattern: "*.jpg", path: "photo.png", want: false},
		{name: "malformed pattern never matches", pattern: "[a-", path: "a.png", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(tt.path, Glob(tt.pattern))
			if got != tt.want {
				t.Errorf("Matches(%q, Glob(%q)) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestRule_BackslashPathsNormalized(t *testing.T) {
	// ToSlash is a no-op on unix, so build the path with forward slashes.
	r := Glob("icons/*.png")
	if !r.Matches("icons/a.png") {
		t.Error("expected slash path to match")
	}
}

func TestRule_Valid(t *testing.T) {
	if !Glob("*.png").Valid() {
		t.Error("*.png should compile")
	}
	if Glob("[a-").Valid() {
		t.Error("[a- should not compile")
	}
	if !Glob("[a-").IsNever() {
		t.Error("uncompilable glob should report IsNever")
	}
	if !Always.Valid() || !Never.Valid() {
		t.Error("literal rules are always valid")
	}
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		input    string
		wantStr  string
		path     string
		wantHits bool
	}{
		{input: "", wantStr: "false", path: "a.png", wantHits: false},
		{input: "false", wantStr: "false", path: "a.png", wantHits: false},
		{input: "FALSE", wantStr: "false", path: "a.png", wantHits: false},
		{input: "true", wantStr: "true", path: "a.png", wantHits: true},
		{input: " True ", wantStr: "true", path: "anything", wantHits: true},
		{input: "*.png", wantStr: "*.png", path: "x/a.png", wantHits: true},
		{input: "*.png", wantStr: "*.png", path: "x/a.jpg", wantHits: false},
	}

	for _, tt := range tests {
		t.Run(tt.input+"->"+tt.path, func(t *testing.T) {
			r := ParseRule(tt.input)
			if r.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", r.String(), tt.wantStr)
			}
			if got := r.Matches(tt.path); got != tt.wantHits {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.wantHits)
			}
		})
	}
}

func TestBool(t *testing.T) {
	if !Bool(true).Matches("x") {
		t.Error("Bool(true) should match")
	}
	if Bool(false).Matches("x") {
		t.Error("Bool(false) should not match")
	}
}

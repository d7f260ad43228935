package filter

import (
	"reflect"
	"testing"
)

func TestHasExtension(t *testing.T) {
	tests := []struct {
		name string
		file string
		exts []string
		want bool
	}{
		{name: "png", file: "a.png", exts: ImageExtensions, want: true},
		{name: "upper case", file: "A.JPG", exts: ImageExtensions, want: true},
		{name: "jpeg", file: "dir/photo.jpeg", exts: ImageExtensions, want: true},
		{name: "gif rejected", file: "a.gif", exts: ImageExtensions, want: false},
		{name: "no extension", file: "Makefile", exts: ImageExtensions, want: false},
		{name: "empty list accepts all", file: "a.gif", exts: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasExtension(tt.file, tt.exts); got != tt.want {
				t.Errorf("HasExtension(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestNormalizeExtensions(t *testing.T) {
	got := NormalizeExtensions([]string{"PNG", ".jpg", " ", "jpeg "})
	want := []string{".png", ".jpg", ".jpeg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeExtensions() = %v, want %v", got, want)
	}
}

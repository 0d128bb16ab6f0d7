package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverWalksRecursively(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.jpg"))
	touch(t, filepath.Join(dir, "sub", "a.PNG"))
	touch(t, filepath.Join(dir, "sub", "notes.txt"))
	touch(t, filepath.Join(dir, "c.webp"))

	paths, err := Discover(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(dir, "b.jpg"),
		filepath.Join(dir, "c.webp"),
		filepath.Join(dir, "sub", "a.PNG"),
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("Discover() = %v, want %v", paths, want)
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "one.jpeg")
	touch(t, photo)

	paths, err := Discover(photo)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != photo {
		t.Errorf("Discover() = %v", paths)
	}
}

func TestDiscoverRejectsNonImageFile(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "readme.md")
	touch(t, doc)

	if _, err := Discover(doc); err == nil {
		t.Error("expected error for unsupported file")
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		prefix  string
		wantErr bool
	}{
		{uri: "s3://photos/2024/summer", bucket: "photos", prefix: "2024/summer"},
		{uri: "s3://photos", bucket: "photos", prefix: ""},
		{uri: "/local/path", wantErr: true},
		{uri: "s3://", wantErr: true},
	}

	for _, tt := range tests {
		bucket, prefix, err := ParseURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseURI(%q): expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseURI(%q) = %q, %q", tt.uri, bucket, prefix)
		}
	}
}

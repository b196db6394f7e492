package resource

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string, perm os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	// WriteFile is subject to umask
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}

func TestResolver_Policies(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<h1>hello</h1>", 0644)
	writeFile(t, root, "secret.html", "nope", 0600)
	writeFile(t, root, "empty.html", "", 0644)
	if err := os.Mkdir(filepath.Join(root, "dir"), 0755); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(root, false)

	tests := []struct {
		name    string
		url     string
		wantErr error
		size    int64
	}{
		{"regular file", "/index.html", nil, 14},
		{"empty file", "/empty.html", nil, 0},
		{"missing", "/missing.html", ErrNotFound, 0},
		{"not world readable", "/secret.html", ErrForbidden, 0},
		{"directory", "/dir", ErrIsDirectory, 0},
		{"traversal", "/dir/../index.html", ErrTraversal, 0},
		{"too long", "/" + strings.Repeat("a", FilenameLen), ErrPathTooLong, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := r.Resolve(tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.url, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.url, err)
			}
			defer f.Unmap()
			if f.Size != tt.size {
				t.Errorf("Size = %d, want %d", f.Size, tt.size)
			}
			if int64(len(f.Data)) != tt.size {
				t.Errorf("mapped %d bytes, want %d", len(f.Data), tt.size)
			}
		})
	}
}

func TestResolver_MappedContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "mapped bytes", 0644)

	f, err := NewResolver(root+"/", false).Resolve("/a.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(f.Data) != "mapped bytes" {
		t.Errorf("Data = %q", f.Data)
	}
	if f.Path != filepath.Join(root, "a.txt") {
		t.Errorf("Path = %q", f.Path)
	}

	if err := f.Unmap(); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := f.Unmap(); err != nil {
		t.Errorf("second Unmap: %v", err)
	}
}

func TestResolver_AllowDotDot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "x", 0644)
	if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	f, err := NewResolver(root, true).Resolve("/sub/../index.html")
	if err != nil {
		t.Fatalf("Resolve with AllowDotDot: %v", err)
	}
	f.Unmap()
}

func TestHasDotDot(t *testing.T) {
	cases := map[string]bool{
		"/a/b":        false,
		"/a..b/c":     false,
		"/..":         true,
		"/a/../b":     true,
		"/a/..b/../c": true,
	}
	for url, want := range cases {
		if got := hasDotDot(url); got != want {
			t.Errorf("hasDotDot(%q) = %v, want %v", url, got, want)
		}
	}
}

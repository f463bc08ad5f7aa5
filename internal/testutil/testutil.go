package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// TempDir creates a temporary directory for testing
// It returns the directory path and a cleanup function
func TempDir(t *testing.T) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "treeclean-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cleanup := func() {
		// Restore write bits so read-only fixtures can be removed
		filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				os.Chmod(p, 0o755)
			}
			return nil
		})
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// BuildTree creates the given slash-separated paths below root.
// Paths ending in "/" become directories, everything else a small file.
func BuildTree(t *testing.T, root string, paths ...string) {
	t.Helper()

	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			dir := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(p, "/")))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("failed to create dir %s: %v", p, err)
			}
			continue
		}
		CreateTestFile(t, root, p, []byte("content of "+p))
	}
}

// ListTree returns every path below root, slash-separated and sorted.
// Directories carry a trailing "/".
func ListTree(t *testing.T, root string) []string {
	t.Helper()

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk %s: %v", root, err)
	}

	sort.Strings(paths)
	return paths
}

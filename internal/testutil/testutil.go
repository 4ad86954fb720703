// Package testutil provides shared test helpers for laying out project trees.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Project creates a temporary project tree. Keys are slash-separated paths
// relative to the root; a key ending in "/" creates an empty directory.
func Project(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			if err := os.MkdirAll(abs, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		WriteFile(t, abs, body)
	}
	return root
}

// WriteFile writes body to abs, creating parent directories.
func WriteFile(t *testing.T, abs, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// SetMtime sets both access and modification time of abs.
func SetMtime(t *testing.T, abs string, ts time.Time) {
	t.Helper()
	if err := os.Chtimes(abs, ts, ts); err != nil {
		t.Fatal(err)
	}
}

// Abs joins slash-separated rel onto root.
func Abs(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

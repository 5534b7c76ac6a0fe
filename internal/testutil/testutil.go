// Package testutil provides shared helpers for tests that need a store or a
// project tree on disk.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vibesrails/internal/slogutil"
	"vibesrails/internal/storage"
)

// Epoch is the starting time of fake clocks in tracker tests.
var Epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// OpenDB opens a migrated store in a fresh temp directory. The store is closed
// when the test ends.
func OpenDB(t testing.TB) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "vibesrails.db"), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// WriteTree creates a temp directory holding files (relative path to
// content) and returns its root.
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

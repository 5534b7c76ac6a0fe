// Package paths resolves the per-user data location and canonical project paths.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnvVar overrides the data directory.
	HomeEnvVar = "VIBESRAILS_HOME"
	// DefaultHomeDir is the data directory name under the user's home.
	DefaultHomeDir = ".vibesrails"
	// DBFileName is the name of the shared SQLite store.
	DBFileName = "vibesrails.db"
	// ConfigFileName is the name of the optional config file.
	ConfigFileName = "config.toml"
)

// GetHome returns the vibesrails data directory: $VIBESRAILS_HOME if set,
// otherwise ~/.vibesrails. It does not create the directory.
func GetHome() (string, error) {
	if env := os.Getenv(HomeEnvVar); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultHomeDir), nil
}

// EnsureHome returns the data directory, creating it if needed.
func EnsureHome() (string, error) {
	dir, err := GetHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// DefaultDBPath returns the well-known location of the shared store.
func DefaultDBPath() (string, error) {
	dir, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DBFileName), nil
}

// DefaultConfigPath returns the location of the user config file.
func DefaultConfigPath() (string, error) {
	dir, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// CanonicalizeProject returns the absolute, symlink-resolved form of a project
// path. Snapshots are keyed by this string, so "." and its absolute spelling
// address the same history. Paths that do not exist are returned cleaned and
// absolute.
func CanonicalizeProject(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", err
	}
	return resolved, nil
}

// RelativeTo converts path to a forward-slash path relative to root,
// resolving symlinks on both sides where possible.
func RelativeTo(root, path string) (string, error) {
	resolve := func(p string) string {
		if r, err := filepath.EvalSymlinks(p); err == nil {
			return r
		}
		return p
	}
	rel, err := filepath.Rel(resolve(root), resolve(path))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsWithin reports whether path lies inside root.
func IsWithin(root, path string) bool {
	rel, err := RelativeTo(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

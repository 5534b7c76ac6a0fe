package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetHome(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "rails-home")
	t.Setenv(HomeEnvVar, custom)

	home, err := GetHome()
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if home != custom {
		t.Errorf("GetHome() = %s, want %s", home, custom)
	}

	t.Setenv(HomeEnvVar, "")
	home, err = GetHome()
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if !strings.HasSuffix(home, DefaultHomeDir) {
		t.Errorf("expected path to end with %s, got %s", DefaultHomeDir, home)
	}
}

func TestDefaultLocations(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnvVar, dir)

	dbPath, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath failed: %v", err)
	}
	if dbPath != filepath.Join(dir, DBFileName) {
		t.Errorf("DefaultDBPath() = %s", dbPath)
	}

	cfgPath, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath failed: %v", err)
	}
	if cfgPath != filepath.Join(dir, ConfigFileName) {
		t.Errorf("DefaultConfigPath() = %s", cfgPath)
	}
}

func TestEnsureHome(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "home")
	t.Setenv(HomeEnvVar, dir)

	got, err := EnsureHome()
	if err != nil {
		t.Fatalf("EnsureHome failed: %v", err)
	}
	if info, err := os.Stat(got); err != nil || !info.IsDir() {
		t.Errorf("EnsureHome should create %s", got)
	}
}

func TestCanonicalizeProject(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "project")
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := CanonicalizeProject(projectDir + string(filepath.Separator) + ".")
	if err != nil {
		t.Fatalf("CanonicalizeProject failed: %v", err)
	}
	want, _ := filepath.EvalSymlinks(projectDir)
	if got != want {
		t.Errorf("CanonicalizeProject() = %s, want %s", got, want)
	}

	if runtime.GOOS != "windows" {
		link := filepath.Join(dir, "link")
		if err := os.Symlink(projectDir, link); err != nil {
			t.Fatal(err)
		}
		viaLink, err := CanonicalizeProject(link)
		if err != nil {
			t.Fatalf("CanonicalizeProject(link) failed: %v", err)
		}
		if viaLink != want {
			t.Errorf("symlinked path should resolve to %s, got %s", want, viaLink)
		}
	}

	missing, err := CanonicalizeProject(filepath.Join(dir, "missing", ".."))
	if err != nil {
		t.Fatalf("CanonicalizeProject(missing) failed: %v", err)
	}
	if !filepath.IsAbs(missing) {
		t.Errorf("missing path should still be absolute, got %s", missing)
	}
}

func TestRelativeToAndIsWithin(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "pkg", "a.go")

	rel, err := RelativeTo(root, inside)
	if err != nil {
		t.Fatalf("RelativeTo failed: %v", err)
	}
	if rel != "pkg/a.go" {
		t.Errorf("RelativeTo() = %s, want pkg/a.go", rel)
	}

	if !IsWithin(root, inside) {
		t.Error("file under root should be within")
	}
	if IsWithin(root, filepath.Dir(root)) {
		t.Error("parent of root should not be within")
	}
	if !IsWithin(root, filepath.Join(root, "..foo")) {
		t.Error("a sibling-looking child name should still be within")
	}
}

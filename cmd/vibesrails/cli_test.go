package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vibesrails/internal/drift"
	"vibesrails/internal/testutil"
)

// resetFlags restores the package-level flag targets between executions of
// the shared rootCmd.
func resetFlags() {
	dbFlag, formatFlag, configFlag = "", "", ""
	verbosity, quietFlag = 0, false
	sessionAITool, sessionFiles = "", nil
	sessionChanges, sessionViolations, sessionLimit = 0, 0, 20
	driftSessionID, driftLimit = "", drift.HistoryWindow
	metricsFile = ""
	exportOutput, exportZstd, exportVerify = "", false, false
	exportSessionLimit, exportSnapshotLimit = 0, 0
	configForce = false
}

type cliEnv struct {
	t    *testing.T
	db   string
	home string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("VIBESRAILS_HOME", home)
	return &cliEnv{t: t, db: filepath.Join(home, "test.db"), home: home}
}

// run executes the CLI with --db and --format json prepended.
func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--db", e.db, "--format", "json", "-q"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(v any, args ...string) {
	e.t.Helper()
	out, err := e.run("", args...)
	if err != nil {
		e.t.Fatalf("%v: %v", args, err)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		e.t.Fatalf("%v: decode %q: %v", args, out, err)
	}
}

func TestCLI_SessionLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	project := t.TempDir()

	var started startResult
	env.mustRun(&started, "session", "start", "--ai-tool", "claude", project)
	if started.SessionID == "" {
		t.Fatal("expected a session id")
	}

	var updated entropyResult
	env.mustRun(&updated, "session", "update", started.SessionID,
		"--file", "a.go", "--file", "b.go", "--changes", "100", "--violations", "2")
	if updated.EntropyScore <= 0 {
		t.Errorf("expected positive entropy, got %v", updated.EntropyScore)
	}

	var summary struct {
		SessionID          string  `json:"session_id"`
		FilesModifiedCount int     `json:"files_modified_count"`
		TotalChangesLOC    int     `json:"total_changes_loc"`
		EntropyScore       float64 `json:"entropy_score"`
	}
	env.mustRun(&summary, "session", "end", started.SessionID)
	if summary.FilesModifiedCount != 2 || summary.TotalChangesLOC != 100 {
		t.Errorf("unexpected summary %+v", summary)
	}

	_, err := env.run("", "session", "end", started.SessionID)
	if err == nil || !strings.Contains(err.Error(), "SESSION_CLOSED") {
		t.Errorf("second end should fail with SESSION_CLOSED, got %v", err)
	}

	var list []struct {
		ID string `json:"id"`
	}
	env.mustRun(&list, "session", "list")
	if len(list) != 1 || list[0].ID != started.SessionID {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestCLI_SessionStatusUnknown(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("", "session", "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "SESSION_NOT_FOUND") {
		t.Errorf("expected SESSION_NOT_FOUND, got %v", err)
	}
}

func TestCLI_Monitor(t *testing.T) {
	env := newCLIEnv(t)
	project := t.TempDir()

	out, err := env.run(`{"action":"start","project_path":"`+project+`","ai_tool":"cursor"}`, "monitor")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var resp struct {
		SessionID    string  `json:"session_id"`
		EntropyScore float64 `json:"entropy_score"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}

	out, err = env.run(`{"action":"explode"}`, "monitor")
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	if !strings.Contains(out, "INVALID_INPUT") {
		t.Errorf("response should carry the error code, got %q", out)
	}
}

func TestCLI_DriftAndExport(t *testing.T) {
	env := newCLIEnv(t)
	project := testutil.WriteTree(t, map[string]string{
		"demo.go": "package demo\n\nfunc A() {}\n",
	})

	var velocity velocityResult
	env.mustRun(&velocity, "drift", "velocity", project)
	if velocity.Comparison != nil {
		t.Error("velocity without snapshots should be empty")
	}

	var snap drift.SnapshotResult
	env.mustRun(&snap, "drift", "snapshot", project)
	if snap.Error != "" || snap.Metrics == nil || snap.Metrics.FunctionCount != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	env.mustRun(nil, "drift", "snapshot", project)

	env.mustRun(&velocity, "drift", "velocity", project)
	if velocity.Comparison == nil {
		t.Fatal("expected a comparison after two snapshots")
	}
	if velocity.Comparison.VelocityScore != 0 || velocity.Comparison.VelocityLevel != drift.LevelNormal {
		t.Errorf("unchanged project should have zero velocity, got %+v", velocity.Comparison)
	}

	var history []drift.Snapshot
	env.mustRun(&history, "drift", "history", project)
	if len(history) != 2 || history[0].ID < history[1].ID {
		t.Errorf("expected two snapshots newest first, got %+v", history)
	}

	outFile := filepath.Join(t.TempDir(), "history.jsonl.zst")
	var stats struct {
		Snapshots  int  `json:"snapshots"`
		Compressed bool `json:"compressed"`
	}
	env.mustRun(&stats, "export", project, "-o", outFile, "--zstd", "--verify")
	if stats.Snapshots != 2 || !stats.Compressed {
		t.Errorf("unexpected export stats %+v", stats)
	}
}

func TestCLI_DriftSnapshotNotADirectory(t *testing.T) {
	env := newCLIEnv(t)
	var snap drift.SnapshotResult
	env.mustRun(&snap, "drift", "snapshot", filepath.Join(env.home, "missing"))
	if snap.Error == "" {
		t.Error("expected a soft error for a missing project")
	}
}

func TestCLI_Metrics(t *testing.T) {
	env := newCLIEnv(t)
	file := testutil.WriteFile(t, t.TempDir(), "lib.go",
		"package lib\n\nimport \"github.com/x/y\"\n\ntype T struct{}\n\nfunc (T) M() {}\n")

	var res struct {
		File struct {
			ImportCount     int `json:"import_count"`
			DependencyCount int `json:"dependency_count"`
			ClassCount      int `json:"class_count"`
			FunctionCount   int `json:"function_count"`
		} `json:"file"`
	}
	env.mustRun(&res, "metrics", "--file", file)
	if res.File.ImportCount != 1 || res.File.DependencyCount != 1 || res.File.ClassCount != 1 || res.File.FunctionCount != 1 {
		t.Errorf("unexpected metrics %+v", res.File)
	}
}

func TestCLI_DBStatusAndMigrate(t *testing.T) {
	env := newCLIEnv(t)

	var fresh dbStatusResult
	env.mustRun(&fresh, "db", "status")
	if fresh.Current != 0 || len(fresh.Pending) != fresh.Latest || fresh.Valid {
		t.Errorf("status of a new file should list every migration as pending, got %+v", fresh)
	}

	var migrated dbStatusResult
	env.mustRun(&migrated, "db", "migrate")
	if migrated.Applied != migrated.Latest || migrated.Current != migrated.Latest || !migrated.Valid {
		t.Errorf("first migrate should apply everything, got %+v", migrated)
	}

	var again dbStatusResult
	env.mustRun(&again, "db", "migrate")
	if again.Applied != 0 {
		t.Errorf("second migrate should apply nothing, got %d", again.Applied)
	}

	var current dbStatusResult
	env.mustRun(&current, "db", "status")
	if current.Current != current.Latest || !current.Valid || len(current.Pending) != 0 {
		t.Errorf("migrated database should be current and valid, got %+v", current)
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.home, "config.toml")

	var res configInitResult
	env.mustRun(&res, "config", "init")
	if res.Path != path {
		t.Errorf("config written to %s, want %s", res.Path, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file missing: %v", err)
	}

	if _, err := env.run("", "config", "init"); err == nil {
		t.Error("init over an existing file should fail without --force")
	}
	env.mustRun(nil, "config", "init", "--force")

	var shown configShowResult
	env.mustRun(&shown, "config", "show")
	if shown.UsedDefaults || shown.ConfigPath != path {
		t.Errorf("unexpected config show %+v", shown)
	}
}

func TestCLI_UnsupportedFormat(t *testing.T) {
	env := newCLIEnv(t)
	// A later --format wins over the one run prepends.
	_, err := env.run("", "--format", "xml", "version")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

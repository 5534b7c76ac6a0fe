package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"vibesrails/internal/drift"
	"vibesrails/internal/session"
	"vibesrails/internal/slogutil"
	"vibesrails/internal/testutil"
)

func seedExporter(t *testing.T) (*Exporter, string) {
	t.Helper()
	ctx := context.Background()
	logger := slogutil.NewDiscardLogger()

	db := testutil.OpenDB(t)
	project := testutil.WriteTree(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})

	sessions := session.NewTracker(db, logger)
	driftTracker := drift.NewTracker(db, logger)

	id, err := sessions.StartSession(ctx, project, "claude")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.UpdateSession(ctx, id, []string{"main.go"}, 12, 0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := driftTracker.TakeSnapshot(ctx, project, id); err != nil {
			t.Fatal(err)
		}
	}

	// A session in another project must not leak into the export.
	if _, err := sessions.StartSession(ctx, t.TempDir(), ""); err != nil {
		t.Fatal(err)
	}

	return NewExporter(sessions, driftTracker, logger), project
}

func TestExportAndReadBack(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "zstd"
		}
		t.Run(name, func(t *testing.T) {
			exporter, project := seedExporter(t)

			var buf bytes.Buffer
			stats, err := exporter.Export(context.Background(), &buf, Options{ProjectPath: project, Compress: compress})
			if err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			if stats.Sessions != 1 || stats.Snapshots != 2 {
				t.Errorf("stats = %+v, want 1 session and 2 snapshots", stats)
			}
			if stats.Bytes != int64(buf.Len()) {
				t.Errorf("stats.Bytes = %d, buffer has %d", stats.Bytes, buf.Len())
			}

			if !compress && !strings.HasPrefix(buf.String(), `{"kind":"meta"`) {
				t.Errorf("plain export should start with the meta record: %q", buf.String()[:40])
			}
			if compress && !bytes.HasPrefix(buf.Bytes(), zstdMagic) {
				t.Error("compressed export should start with the zstd magic number")
			}

			archive, err := ReadAll(&buf)
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if archive.Meta.ProjectPath != stats.ProjectPath {
				t.Errorf("meta project = %s, want %s", archive.Meta.ProjectPath, stats.ProjectPath)
			}
			if len(archive.Sessions) != 1 || archive.Sessions[0].TotalChangesLOC != 12 {
				t.Errorf("sessions = %+v", archive.Sessions)
			}
			if len(archive.Snapshots) != 2 || archive.Snapshots[0].Metrics.FunctionCount != 1 {
				t.Errorf("snapshots = %+v", archive.Snapshots)
			}
		})
	}
}

func TestReadAll_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"unknown kind", `{"kind":"meta","data":{"format_version":1}}` + "\n" + `{"kind":"blob","data":{}}`},
		{"future version", `{"kind":"meta","data":{"format_version":99}}`},
		{"garbage", "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadAll(strings.NewReader(tt.input)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

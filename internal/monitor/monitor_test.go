package monitor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"vibesrails/internal/errors"
	"vibesrails/internal/session"
	"vibesrails/internal/slogutil"
	"vibesrails/internal/testutil"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := slogutil.NewDiscardLogger()
	db := testutil.OpenDB(t)
	return NewHandler(session.NewTracker(db, logger), logger)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"start", `{"action":"start","project_path":"/tmp/p"}`, ""},
		{"update", `{"action":"update","session_id":"abc","files_modified":["a.py"],"changes_loc":3}`, ""},
		{"status", `{"action":"status","session_id":"abc"}`, ""},
		{"not json", `{"action":`, "not valid JSON"},
		{"unknown action", `{"action":"pause","session_id":"abc"}`, "invalid request"},
		{"start without path", `{"action":"start"}`, "invalid request"},
		{"end without id", `{"action":"end"}`, "invalid request"},
		{"negative loc", `{"action":"update","session_id":"abc","changes_loc":-4}`, "invalid request"},
		{"extra field", `{"action":"status","session_id":"abc","force":true}`, "invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.input))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DecodeRequest failed: %v", err)
				}
				if req.Action == "" {
					t.Error("action not decoded")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.HasCode(err, errors.InvalidInput) {
				t.Errorf("code = %s, want INVALID_INPUT", errors.CodeOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestHandler_FullLifecycle(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	start := h.HandleJSON(ctx, mustJSON(t, Request{Action: ActionStart, ProjectPath: t.TempDir(), AITool: "copilot"}))
	if !start.OK() || start.SessionID == "" {
		t.Fatalf("start failed: %+v", start.Error)
	}
	if *start.EntropyScore != 0 || start.EntropyLevel != session.LevelSafe {
		t.Errorf("start response = %+v", start)
	}

	update := h.HandleJSON(ctx, mustJSON(t, Request{
		Action:        ActionUpdate,
		SessionID:     start.SessionID,
		FilesModified: []string{"a.py", "b.py"},
		ChangesLOC:    500,
		Violations:    10,
	}))
	if !update.OK() {
		t.Fatalf("update failed: %+v", update.Error)
	}
	if *update.EntropyScore != 0.52 {
		t.Errorf("entropy = %v, want 0.52", *update.EntropyScore)
	}

	status := h.HandleJSON(ctx, mustJSON(t, Request{Action: ActionStatus, SessionID: start.SessionID}))
	if !status.OK() || status.EntropyLevel != session.LevelWarning {
		t.Errorf("status = %+v", status)
	}

	end := h.HandleJSON(ctx, mustJSON(t, Request{Action: ActionEnd, SessionID: start.SessionID}))
	if !end.OK() || end.Summary == nil {
		t.Fatalf("end failed: %+v", end.Error)
	}
	if end.Summary.FilesModifiedCount != 2 || end.Summary.ViolationsCount != 10 {
		t.Errorf("summary = %+v", end.Summary)
	}
}

func TestHandler_ErrorsAreOneLine(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	resp := h.HandleJSON(ctx, []byte(`{"action":"status","session_id":"missing"}`))
	if resp.OK() {
		t.Fatal("expected failure for unknown session")
	}
	if resp.Error.Code != errors.SessionNotFound {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", resp.Error.Code)
	}
	if strings.Contains(resp.Error.Message, "\n") || resp.Error.Message == "" {
		t.Errorf("message should be a single line: %q", resp.Error.Message)
	}

	resp = h.HandleJSON(ctx, []byte(`{"action":"start"}`))
	if resp.OK() || resp.Error.Code != errors.InvalidInput {
		t.Errorf("invalid request response = %+v", resp)
	}
}

func TestHandler_UnknownActionWithoutSchema(t *testing.T) {
	h := newTestHandler(t)

	resp := h.Handle(context.Background(), &Request{Action: "pause"})
	if resp.OK() || resp.Error.Code != errors.InvalidInput {
		t.Errorf("response = %+v, want INVALID_INPUT", resp)
	}
}

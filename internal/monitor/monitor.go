// Package monitor exposes the session tracker as a four-action JSON protocol
// for editor hooks and tool-call wrappers.
package monitor

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"vibesrails/internal/errors"
	"vibesrails/internal/session"
)

// Actions.
const (
	ActionStart  = "start"
	ActionUpdate = "update"
	ActionStatus = "status"
	ActionEnd    = "end"
)

//go:embed request.schema.json
var requestSchema []byte

const schemaURL = "https://vibesrails.dev/schema/monitor-request-v1.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(requestSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Request is one monitor call.
type Request struct {
	Action        string   `json:"action"`
	SessionID     string   `json:"session_id,omitempty"`
	ProjectPath   string   `json:"project_path,omitempty"`
	AITool        string   `json:"ai_tool,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	ChangesLOC    int      `json:"changes_loc,omitempty"`
	Violations    int      `json:"violations,omitempty"`
}

// ErrorBody is the one-line diagnostic of a failed call.
type ErrorBody struct {
	Code    errors.ErrorCode `json:"code" yaml:"code"`
	Message string           `json:"message" yaml:"message"`
}

// Response carries the raw result of one action.
type Response struct {
	Action       string           `json:"action" yaml:"action"`
	SessionID    string           `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	EntropyScore *float64         `json:"entropy_score,omitempty" yaml:"entropy_score,omitempty"`
	EntropyLevel string           `json:"entropy_level,omitempty" yaml:"entropy_level,omitempty"`
	Summary      *session.Summary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error        *ErrorBody       `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r *Response) OK() bool {
	return r.Error == nil
}

// DecodeRequest validates data against the request schema and decodes it.
func DecodeRequest(data []byte) (*Request, error) {
	s, err := schema()
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "request schema is invalid", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, errors.Wrap(errors.InvalidInput, "request is not valid JSON", err)
	}
	if err := s.Validate(instance); err != nil {
		msg := err.Error()
		var ve *jsonschema.ValidationError
		if stderrors.As(err, &ve) {
			msg = leafMessage(ve)
		}
		return nil, errors.New(errors.InvalidInput, "invalid request: "+msg)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrap(errors.InvalidInput, "cannot decode request", err)
	}
	return &req, nil
}

// leafMessage returns the most specific cause, which reads better on one line.
func leafMessage(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}

// Handler dispatches requests to a session tracker.
type Handler struct {
	sessions *session.Tracker
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(sessions *session.Tracker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{sessions: sessions, logger: logger}
}

// HandleJSON decodes and handles one request. Failures are reported in the
// response, never as a Go error.
func (h *Handler) HandleJSON(ctx context.Context, data []byte) *Response {
	req, err := DecodeRequest(data)
	if err != nil {
		return errorResponse("", "", err)
	}
	return h.Handle(ctx, req)
}

// Handle runs one already decoded request.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	resp, err := h.dispatch(ctx, req)
	if err != nil {
		h.logger.Debug("Monitor action failed", "action", req.Action, "error", err)
		return errorResponse(req.Action, req.SessionID, err)
	}
	return resp
}

func (h *Handler) dispatch(ctx context.Context, req *Request) (*Response, error) {
	switch req.Action {
	case ActionStart:
		id, err := h.sessions.StartSession(ctx, req.ProjectPath, req.AITool)
		if err != nil {
			return nil, err
		}
		return scoreResponse(req.Action, id, 0), nil

	case ActionUpdate:
		score, err := h.sessions.UpdateSession(ctx, req.SessionID, req.FilesModified, req.ChangesLOC, req.Violations)
		if err != nil {
			return nil, err
		}
		return scoreResponse(req.Action, req.SessionID, score), nil

	case ActionStatus:
		score, err := h.sessions.GetEntropy(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return scoreResponse(req.Action, req.SessionID, score), nil

	case ActionEnd:
		summary, err := h.sessions.EndSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		resp := scoreResponse(req.Action, req.SessionID, summary.EntropyScore)
		resp.Summary = summary
		return resp, nil

	default:
		return nil, errors.Newf(errors.InvalidInput, "unknown action %q", req.Action)
	}
}

func scoreResponse(action, id string, score float64) *Response {
	return &Response{
		Action:       action,
		SessionID:    id,
		EntropyScore: &score,
		EntropyLevel: session.ClassifyEntropy(score),
	}
}

func errorResponse(action, id string, err error) *Response {
	body := &ErrorBody{Code: errors.CodeOf(err), Message: err.Error()}
	var re *errors.RailsError
	if stderrors.As(err, &re) {
		body.Message = re.Message
	}
	return &Response{Action: action, SessionID: id, Error: body}
}

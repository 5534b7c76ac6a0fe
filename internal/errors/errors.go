// Package errors defines the hard-failure error type shared by the trackers.
//
// Expected "no result yet" outcomes (an unparseable file, too few snapshots, an
// unknown session on a read) are reported through nil returns and never use
// this package.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all hard failure modes
type ErrorCode string

const (
	// SessionNotFound indicates the session id is unknown to the store
	SessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// SessionClosed indicates a mutation was attempted on an ended session
	SessionClosed ErrorCode = "SESSION_CLOSED"
	// InvalidInput indicates a malformed argument from the caller
	InvalidInput ErrorCode = "INVALID_INPUT"
	// StorageError indicates the database rejected an operation
	StorageError ErrorCode = "STORAGE_ERROR"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixAction represents a suggested follow-up for the caller
type FixAction struct {
	Command     string `json:"command,omitempty"`
	Description string `json:"description"`
}

// RailsError carries a stable code and a one-line message for CLI and tool wrappers.
type RailsError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a RailsError without an underlying cause.
func New(code ErrorCode, message string) *RailsError {
	return &RailsError{
		Code:           code,
		Message:        message,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a RailsError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *RailsError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a RailsError around an underlying error.
func Wrap(code ErrorCode, message string, cause error) *RailsError {
	e := New(code, message)
	e.cause = cause
	return e
}

// Error implements the error interface
func (e *RailsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *RailsError) Unwrap() error {
	return e.cause
}

// Is matches any RailsError with the same code, so callers can write
// errors.Is(err, errors.New(errors.SessionNotFound, "")).
func (e *RailsError) Is(target error) bool {
	var t *RailsError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *RailsError) WithDetails(details interface{}) *RailsError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first RailsError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var re *RailsError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var re *RailsError
	return stderrors.As(err, &re) && re.Code == code
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	SessionNotFound: {
		{Command: "vibesrails session list", Description: "List known sessions for this project"},
	},
	SessionClosed: {
		{Command: "vibesrails session start", Description: "Start a new session; ended sessions are read-only"},
	},
	StorageError: {
		{Command: "vibesrails db status", Description: "Check the database schema and location"},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}

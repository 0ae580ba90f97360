// Package errors provides structured error types for dap-viewer.
//
// Errors that describe a remote failure (an exception raised by a helper in
// the debuggee, an adapter rejecting an evaluate request) carry the remote
// message verbatim and no hint, so callers can surface them unchanged.
// Errors the caller can act on locally carry a hint.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionNoClient     ErrorCode = "SESSION_NO_CLIENT"
	CodeSessionEnded        ErrorCode = "SESSION_ENDED"

	// Adapter errors
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// DAP protocol errors
	CodeDAPInitFailed    ErrorCode = "DAP_INIT_FAILED"
	CodeDAPLaunchFailed  ErrorCode = "DAP_LAUNCH_FAILED"
	CodeDAPAttachFailed  ErrorCode = "DAP_ATTACH_FAILED"
	CodeDAPTimeout       ErrorCode = "DAP_TIMEOUT"
	CodeDAPProtocolError ErrorCode = "DAP_PROTOCOL_ERROR"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Configuration errors
	CodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Value exchange errors
	CodeParseError        ErrorCode = "PARSE_ERROR"
	CodeEvaluationFailed  ErrorCode = "EVALUATION_FAILED"
	CodeRemoteError       ErrorCode = "REMOTE_ERROR"
	CodeUnresolvedContext ErrorCode = "UNRESOLVED_CONTEXT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeUnexpectedShape   ErrorCode = "UNEXPECTED_SHAPE"

	// Runtime errors
	CodeBreakpointFailed ErrorCode = "BREAKPOINT_FAILED"
	CodeNoThreads        ErrorCode = "NO_THREADS"

	// Errors that carry no code of their own
	CodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type carrying a machine-readable code,
// a readable message and, where useful, a hint on how to recover.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// HasCode reports whether err is, or wraps, a DebugError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions, or use debug_launch to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_disconnect to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// SessionNoClient creates an error when a session has no active client
func SessionNoClient(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNoClient,
		Message: fmt.Sprintf("session '%s' has no active debug client", sessionID),
		Hint:    "The session may have been terminated or failed to initialize. Use debug_disconnect to clean up and debug_launch to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionEnded is returned for an evaluation that was in flight when the
// debug session terminated or disconnected.
func SessionEnded(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionEnded,
		Message: "session ended",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// --- Adapter Errors ---

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debugpy adapter: %v", err),
		Hint:    "Ensure debugpy is installed for the configured interpreter (pip install debugpy), or pass pythonPath pointing at a virtualenv that has it.",
		Cause:   err,
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed. Check that the program path is correct and the file exists.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- DAP Protocol Errors ---

// DAPInitFailed creates an error for DAP initialization failures
func DAPInitFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPInitFailed,
		Message: fmt.Sprintf("debug adapter initialization failed: %v", err),
		Hint:    "The debug adapter may be incompatible or crashed during startup. Try disconnecting and launching a new session.",
		Cause:   err,
	}
}

// DAPLaunchFailed creates an error for launch failures
func DAPLaunchFailed(program string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPLaunchFailed,
		Message: fmt.Sprintf("failed to launch program: %v", err),
		Hint:    "Check that the program path is correct and the file exists.",
		Cause:   err,
		Details: map[string]interface{}{
			"program": program,
		},
	}
}

// DAPAttachFailed creates an error for attach failures
func DAPAttachFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPAttachFailed,
		Message: fmt.Sprintf("failed to attach to process: %v", err),
		Hint:    "Ensure the target process is running debugpy and listening on the specified port (python -m debugpy --listen 5678 ...).",
		Cause:   err,
	}
}

// DAPTimeout creates an error for DAP timeouts
func DAPTimeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeDAPTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "The program may be running rather than stopped. Set a breakpoint and use debug_continue to stop it first.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Configuration Errors ---

// ConfigInvalid creates an error for an invalid configuration file
func ConfigInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", path, reason),
		Hint:    "Check the configuration file for syntax errors and ensure all values are in range.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// LaunchConfigInvalid creates an error for a launch.json configuration that
// cannot be found or resolved
func LaunchConfigInvalid(name string, err error) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("launch configuration '%s': %v", name, err),
		Hint:    "Pass workspace pointing at a folder with .vscode/launch.json, and a debugpy configuration name.",
		Details: map[string]interface{}{
			"configName": name,
		},
		Cause: err,
	}
}

// PermissionDenied creates an error for an operation the configuration forbids
func PermissionDenied(operation string, mode string) *DebugError {
	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("operation '%s' is not allowed in %s mode", operation, mode),
		Hint:    "Enable the operation in the configuration file (mode, allowSpawn, allowAttach, allowEvaluate).",
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Value Exchange Errors ---

// ParseFailed wraps a malformed or unexpected wire reply. The message is the
// parser's description of the first token it expected.
func ParseFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeParseError,
		Message: err.Error(),
		Cause:   err,
	}
}

// EvaluationFailed wraps an adapter-level rejection of an evaluate request.
// The adapter's message is kept verbatim.
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: err.Error(),
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// RemoteError carries the message of an exception raised by a helper inside
// the debuggee and reported through the Error(...) channel.
func RemoteError(message string) *DebugError {
	return &DebugError{
		Code:    CodeRemoteError,
		Message: message,
	}
}

// UnresolvedContext is returned when no active frame can be found for an
// evaluation that was not pinned to a frame.
func UnresolvedContext(err error) *DebugError {
	return &DebugError{
		Code:    CodeUnresolvedContext,
		Message: fmt.Sprintf("no active frame to evaluate in: %v", err),
		Hint:    "The program must be stopped at a breakpoint. Pass frameId explicitly to evaluate in a specific frame.",
		Cause:   err,
	}
}

// ViewableNotFound is returned for a (group, type) pair nobody registered.
func ViewableNotFound(group, typ string) *DebugError {
	return &DebugError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no viewable registered for %s/%s", group, typ),
		Hint:    "Use viewable_list to see registered viewables.",
		Details: map[string]interface{}{
			"group": group,
			"type":  typ,
		},
	}
}

// TrackingNotFound is returned for an unknown tracking id.
func TrackingNotFound(id string) *DebugError {
	return &DebugError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no tracked selection with id '%s'", id),
		Hint:    "Tracking ids are returned by viewable_track and stop resolving after viewable_untrack.",
		Details: map[string]interface{}{
			"trackingId": id,
		},
	}
}

// UnexpectedShape is returned when a decoded reply is well-formed but not the
// shape the query promises (e.g. a list where a mapping was required).
func UnexpectedShape(expected, got string) *DebugError {
	return &DebugError{
		Code:    CodeUnexpectedShape,
		Message: "unexpected shape",
		Details: map[string]interface{}{
			"expected": expected,
			"got":      got,
		},
	}
}

// --- Runtime Errors ---

// BreakpointFailed creates an error for breakpoint failures
func BreakpointFailed(path string, line int, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointFailed,
		Message: fmt.Sprintf("could not set breakpoint at %s:%d", path, line),
		Hint:    fmt.Sprintf("Reason: %s. Ensure the file path is correct and the line number contains executable code (not comments or blank lines).", reason),
		Details: map[string]interface{}{
			"path":   path,
			"line":   line,
			"reason": reason,
		},
	}
}

// NoThreads creates an error when no threads are available
func NoThreads() *DebugError {
	return &DebugError{
		Code:    CodeNoThreads,
		Message: "no threads available",
		Hint:    "The program may have terminated or not started yet.",
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

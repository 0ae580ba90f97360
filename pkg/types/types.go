// Package types defines shared data types used across dap-viewer.
//
// This package provides type definitions for:
//   - Selection: what the user picked to view (a variable or a free-form expression)
//   - ObjectType: the (group, type) identity of a viewable
//   - EvalContext: the DAP evaluate context a query is issued in
//   - SessionStatus / SessionInfo: debug session bookkeeping
//   - Breakpoint / StoppedInfo: results reported by the session tools
package types

import (
	"fmt"
	"strings"
)

// Language represents a supported programming language
type Language string

const (
	LanguagePython Language = "python"
)

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// EvalContext is the context argument of a DAP evaluate request.
type EvalContext string

const (
	EvalContextWatch EvalContext = "watch"
	EvalContextRepl  EvalContext = "repl"
	EvalContextHover EvalContext = "hover"
)

// ParseEvalContext validates a context name.
func ParseEvalContext(s string) (EvalContext, error) {
	switch c := EvalContext(strings.ToLower(s)); c {
	case EvalContextWatch, EvalContextRepl, EvalContextHover:
		return c, nil
	default:
		return "", fmt.Errorf("unknown evaluate context %q (want watch, repl or hover)", s)
	}
}

// ObjectType identifies a viewable by its display group and concrete kind.
type ObjectType struct {
	Group string `json:"group"`
	Type  string `json:"type"`
}

// String returns "group/type".
func (o ObjectType) String() string {
	return o.Group + "/" + o.Type
}

// Selection is what the user picked to view. The set of implementations is
// closed: VariableSelection and ExpressionSelection.
type Selection interface {
	// Source returns the Python expression that evaluates to the selected object.
	Source() string
	// Frame returns the pinned frame id, if any.
	Frame() (int, bool)

	isSelection()
}

// VariableSelection selects a variable by name.
type VariableSelection struct {
	Name    string `json:"name"`
	FrameID *int   `json:"frameId,omitempty"`
}

// ExpressionSelection selects the result of a free-form expression.
type ExpressionSelection struct {
	Expression string `json:"expression"`
	FrameID    *int   `json:"frameId,omitempty"`
}

// Source returns the variable name.
func (s VariableSelection) Source() string {
	return s.Name
}

// Frame returns the pinned frame id, if any.
func (s VariableSelection) Frame() (int, bool) {
	return derefFrame(s.FrameID)
}

// Source returns the expression in parentheses so it composes as a call argument.
func (s ExpressionSelection) Source() string {
	return "(" + s.Expression + ")"
}

// Frame returns the pinned frame id, if any.
func (s ExpressionSelection) Frame() (int, bool) {
	return derefFrame(s.FrameID)
}

func (VariableSelection) isSelection()   {}
func (ExpressionSelection) isSelection() {}

func derefFrame(id *int) (int, bool) {
	if id == nil {
		return 0, false
	}
	return *id, true
}

// Frame returns a pointer suitable for the FrameID fields.
func Frame(id int) *int {
	return &id
}

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	Language  Language      `json:"language"`
	Status    SessionStatus `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Program   string        `json:"program,omitempty"`
}

// SourceInfo represents source file information
type SourceInfo struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// Breakpoint represents a breakpoint
type Breakpoint struct {
	ID       int         `json:"id,omitempty"`
	Verified bool        `json:"verified"`
	Message  string      `json:"message,omitempty"`
	Source   *SourceInfo `json:"source,omitempty"`
	Line     int         `json:"line,omitempty"`
}

// StoppedInfo reports why the debuggee stopped.
type StoppedInfo struct {
	Reason      string `json:"reason"`
	ThreadID    int    `json:"threadId"`
	Description string `json:"description,omitempty"`
	AllStopped  bool   `json:"allThreadsStopped"`
}

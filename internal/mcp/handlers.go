package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/adapters"
	"github.com/ctagard/dap-viewer/internal/bridge"
	internaldap "github.com/ctagard/dap-viewer/internal/dap"
	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/inject"
	"github.com/ctagard/dap-viewer/internal/launchconfig"
	"github.com/ctagard/dap-viewer/internal/result"
	"github.com/ctagard/dap-viewer/pkg/types"
)

const (
	handshakeTimeout       = 10 * time.Second
	defaultContinueTimeout = 30 * time.Second
)

// Session Management Handlers

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanSpawn() {
		return toolError(errors.PermissionDenied("spawn", string(s.config.Mode)))
	}

	opts, err := launchOptions(request)
	if err != nil {
		return toolError(err)
	}

	program := opts.Program
	if program == "" {
		program = "-m " + opts.Module
	}

	session, err := s.sessionManager.CreateSession(types.LanguagePython, program)
	if err != nil {
		return toolError(err)
	}

	client, cmd, err := adapters.SpawnAndConnect(ctx, s.adapter, opts, s.clientOptions()...)
	if err != nil {
		s.abandon(session.ID(), false)
		return toolError(err)
	}
	if cmd != nil && cmd.Process != nil {
		_ = s.sessionManager.SetSessionProcess(session.ID(), cmd, cmd.Process.Pid)
	}
	_ = s.sessionManager.SetSessionClient(session.ID(), client)

	// debugpy answers launch only after configurationDone.
	err = s.handshake(ctx, client,
		func() (*internaldap.Pending, error) { return client.LaunchAsync(s.adapter.BuildLaunchArgs(opts)) },
		func(ctx context.Context, p *internaldap.Pending) error {
			_, err := client.WaitForLaunchResponse(ctx, p, handshakeTimeout)
			return err
		})
	if err != nil {
		s.abandon(session.ID(), true)
		if _, ok := err.(*errors.DebugError); !ok {
			err = errors.DAPLaunchFailed(program, err)
		}
		return toolError(err)
	}

	_ = s.sessionManager.UpdateSessionStatus(session.ID(), types.SessionStatusRunning)
	s.logger.Info("Launched debug session", zap.String("session", session.ID()), zap.String("program", program))

	res := map[string]interface{}{
		"sessionId": session.ID(),
		"status":    "launched",
		"program":   program,
	}
	if cmd != nil && cmd.Process != nil {
		res["pid"] = cmd.Process.Pid
	}
	return jsonResult(res)
}

func (s *Server) handleDebugAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanAttach() {
		return toolError(errors.PermissionDenied("attach", string(s.config.Mode)))
	}

	opts, err := attachOptions(request)
	if err != nil {
		return toolError(err)
	}
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	session, err := s.sessionManager.CreateSession(types.LanguagePython, "")
	if err != nil {
		return toolError(err)
	}

	client, err := adapters.Connect(ctx, address, 5, s.clientOptions()...)
	if err != nil {
		s.abandon(session.ID(), false)
		return toolError(err)
	}
	_ = s.sessionManager.SetSessionClient(session.ID(), client)

	err = s.handshake(ctx, client,
		func() (*internaldap.Pending, error) { return client.AttachAsync(s.adapter.BuildAttachArgs(opts)) },
		func(ctx context.Context, p *internaldap.Pending) error {
			_, err := client.WaitForAttachResponse(ctx, p, handshakeTimeout)
			return err
		})
	if err != nil {
		s.abandon(session.ID(), false)
		if _, ok := err.(*errors.DebugError); !ok {
			err = errors.DAPAttachFailed(err)
		}
		return toolError(err)
	}

	_ = s.sessionManager.UpdateSessionStatus(session.ID(), types.SessionStatusRunning)
	s.logger.Info("Attached debug session", zap.String("session", session.ID()), zap.String("address", address))

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID(),
		"status":    "attached",
		"address":   address,
	})
}

// launchOptions builds the launch options from a named launch.json
// configuration, if any, overlaid with the explicit arguments.
func launchOptions(request mcp.CallToolRequest) (adapters.LaunchOptions, error) {
	var opts adapters.LaunchOptions
	if name := request.GetString("configName", ""); name != "" {
		res, err := launchconfig.Load(request.GetString("workspace", ""), name)
		if err != nil {
			return opts, errors.LaunchConfigInvalid(name, err)
		}
		if res.Launch == nil {
			return opts, errors.InvalidParameter("configName", name, "a launch configuration; use debug_attach for attach configurations")
		}
		opts = *res.Launch
	}

	overlay(&opts.Program, request.GetString("program", ""))
	overlay(&opts.Module, request.GetString("module", ""))
	overlay(&opts.Cwd, request.GetString("cwd", ""))
	overlay(&opts.PythonPath, request.GetString("pythonPath", ""))
	opts.StopOnEntry = request.GetBool("stopOnEntry", opts.StopOnEntry)

	if opts.Program == "" && opts.Module == "" {
		return opts, errors.MissingParameter("program",
			"Specify the path to the Python script to debug, a module to run with -m, or a launch.json configName.")
	}
	if raw := request.GetString("args", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Args); err != nil {
			return opts, errors.InvalidParameter("args", raw, `a JSON array of strings, e.g. ["--epochs", "3"]`)
		}
	}
	if raw := request.GetString("env", ""); raw != "" {
		var env map[string]string
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return opts, errors.InvalidParameter("env", raw, `a JSON object of strings, e.g. {"SEED": "1"}`)
		}
		if opts.Env == nil {
			opts.Env = make(map[string]string, len(env))
		}
		for k, v := range env {
			opts.Env[k] = v
		}
	}
	return opts, nil
}

// attachOptions builds the attach target the same way launchOptions does.
func attachOptions(request mcp.CallToolRequest) (adapters.AttachOptions, error) {
	var opts adapters.AttachOptions
	if name := request.GetString("configName", ""); name != "" {
		res, err := launchconfig.Load(request.GetString("workspace", ""), name)
		if err != nil {
			return opts, errors.LaunchConfigInvalid(name, err)
		}
		if res.Attach == nil {
			return opts, errors.InvalidParameter("configName", name, "an attach configuration; use debug_launch for launch configurations")
		}
		opts = *res.Attach
	}

	overlay(&opts.Host, request.GetString("host", ""))
	if port := request.GetInt("port", 0); port > 0 {
		opts.Port = port
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port <= 0 {
		return opts, errors.MissingParameter("port", "Specify the port passed to debugpy.listen(), e.g. 5678, or a launch.json configName.")
	}
	return opts, nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (s *Server) handleDebugDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(missingSessionID())
	}

	terminateDebuggee := request.GetBool("terminateDebuggee", false)
	if err := s.sessionManager.TerminateSession(ctx, sessionID, terminateDebuggee); err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessionManager.ListSessions()

	infos := make([]types.SessionInfo, len(sessions))
	for i, session := range sessions {
		infos[i] = session.Info()
	}

	return jsonResult(map[string]interface{}{
		"sessions": infos,
	})
}

// Control Handlers

func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, client, err := s.getSessionClient(request)
	if err != nil {
		return toolError(err)
	}

	path, err := request.RequireString("path")
	if err != nil {
		return toolError(errors.MissingParameter("path", "The source file to set breakpoints in."))
	}

	bpsJSON, err := request.RequireString("breakpoints")
	if err != nil {
		return toolError(errors.MissingParameter("breakpoints", `JSON array of breakpoints, e.g. [{"line": 10}]`))
	}

	var bpRequests []struct {
		Line      int    `json:"line"`
		Condition string `json:"condition,omitempty"`
	}
	if err := json.Unmarshal([]byte(bpsJSON), &bpRequests); err != nil {
		return toolError(errors.InvalidParameter("breakpoints", bpsJSON, `[{"line": 10}, {"line": 20, "condition": "x > 5"}]`))
	}

	breakpoints := make([]dap.SourceBreakpoint, len(bpRequests))
	for i, bp := range bpRequests {
		if bp.Line < 1 {
			return toolError(errors.BreakpointFailed(path, bp.Line, "line numbers start at 1"))
		}
		breakpoints[i] = dap.SourceBreakpoint{Line: bp.Line, Condition: bp.Condition}
	}

	bps, err := client.SetBreakpoints(ctx, dap.Source{Path: path}, breakpoints)
	if err != nil {
		return toolError(errors.Wrap(errors.CodeBreakpointFailed, fmt.Sprintf("failed to set breakpoints in %s", path),
			"Ensure the file path is correct and the line numbers contain executable code.", err))
	}

	out := make([]types.Breakpoint, len(bps))
	for i, bp := range bps {
		out[i] = types.Breakpoint{
			ID:       bp.Id,
			Verified: bp.Verified,
			Message:  bp.Message,
			Line:     bp.Line,
			Source:   &types.SourceInfo{Path: path},
		}
	}

	return jsonResult(map[string]interface{}{
		"breakpoints": out,
	})
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, client, err := s.getSessionClient(request)
	if err != nil {
		return toolError(err)
	}

	threadID := request.GetInt("threadId", 0)
	if threadID == 0 {
		if stopped := client.LastStopped(); stopped != nil && stopped.ThreadID != 0 {
			threadID = stopped.ThreadID
		} else {
			threads, err := client.Threads(ctx)
			if err != nil {
				return toolError(err)
			}
			if len(threads) == 0 {
				return toolError(errors.NoThreads())
			}
			threadID = threads[0].Id
		}
	}

	timeout := defaultContinueTimeout
	if secs := request.GetFloat("timeout", 0); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	_ = s.sessionManager.UpdateSessionStatus(session.ID(), types.SessionStatusRunning)
	stopped, err := client.ContinueAndWait(ctx, threadID, timeout)
	if stderrors.Is(err, internaldap.ErrClosed) {
		return jsonResult(map[string]interface{}{
			"sessionId": session.ID(),
			"status":    "terminated",
		})
	}
	if err != nil {
		return toolError(err)
	}

	_ = s.sessionManager.UpdateSessionStatus(session.ID(), types.SessionStatusStopped)
	return jsonResult(map[string]interface{}{
		"sessionId": session.ID(),
		"status":    "stopped",
		"stopped":   stopped,
	})
}

// Viewable Handlers

func (s *Server) handleViewableList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type entry struct {
		Group     string `json:"group"`
		Type      string `json:"type"`
		Extension string `json:"extension"`
	}

	descs := s.registry.All()
	out := make([]entry, len(descs))
	for i, d := range descs {
		out[i] = entry{Group: d.Group, Type: d.Type, Extension: d.Extension}
	}

	return jsonResult(map[string]interface{}{
		"groups":    s.registry.Groups(),
		"viewables": out,
	})
}

func (s *Server) handleViewableScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := request.GetString("sessionId", ""); id != "" {
		if script, ok := s.bridge.Script(id); ok {
			return mcp.NewToolResultText(script), nil
		}
	}
	return mcp.NewToolResultText(inject.Compose(s.registry.All())), nil
}

func (s *Server) handleViewableClassify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, sel, err := s.viewableTarget(request)
	if err != nil {
		return toolError(err)
	}

	r := s.bridge.Classify(ctx, sess, sel)
	return resultTool(r, func(ots []types.ObjectType) interface{} {
		return map[string]interface{}{"objectTypes": ots}
	})
}

func (s *Server) handleViewableDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, sel, err := s.viewableTarget(request)
	if err != nil {
		return toolError(err)
	}
	ot, err := objectType(request)
	if err != nil {
		return toolError(err)
	}

	r := s.bridge.Describe(ctx, sess, sel, ot)
	return resultTool(r, func(info *orderedmap.OrderedMap[string, string]) interface{} {
		return map[string]interface{}{
			"group": ot.Group,
			"type":  ot.Type,
			"info":  info,
		}
	})
}

func (s *Server) handleViewableSerialize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, sel, err := s.viewableTarget(request)
	if err != nil {
		return toolError(err)
	}
	ot, err := objectType(request)
	if err != nil {
		return toolError(err)
	}

	path := request.GetString("path", "")
	if path == "" {
		d, err := s.registry.Find(ot.Group, ot.Type)
		if err != nil {
			return toolError(err)
		}
		path = filepath.Join(s.config.OutputDir, fmt.Sprintf("%s-%s.%s", d.Type, uuid.NewString()[:8], d.Extension))
	}

	r := s.bridge.Serialize(ctx, sess, sel, ot, path)
	return resultTool(r, func(p string) interface{} {
		return map[string]interface{}{
			"group": ot.Group,
			"type":  ot.Type,
			"path":  p,
		}
	})
}

func (s *Server) handleViewableTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := directSelection(request)
	if err != nil {
		return toolError(err)
	}

	id := s.tracked.Track(sel)
	return jsonResult(map[string]interface{}{
		"trackingId": id,
		"source":     sel.Source(),
	})
}

func (s *Server) handleViewableUntrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("trackingId")
	if err != nil {
		return toolError(errors.MissingParameter("trackingId", "The ID returned by viewable_track."))
	}

	s.tracked.Untrack(id)
	return jsonResult(map[string]interface{}{
		"trackingId": id,
		"status":     "untracked",
	})
}

// Helper functions

func (s *Server) clientOptions() []internaldap.ClientOption {
	return []internaldap.ClientOption{
		internaldap.WithLogger(s.logger.Named("dap")),
		internaldap.WithRequestTimeout(s.config.RequestTimeout.Std()),
	}
}

// handshake runs initialize, the launch or attach request, configurationDone,
// then waits for the launch or attach response.
func (s *Server) handshake(ctx context.Context, client *internaldap.Client, send func() (*internaldap.Pending, error), await func(context.Context, *internaldap.Pending) error) error {
	if _, err := client.Initialize(ctx, "dap-viewer", "dap-viewer"); err != nil {
		return errors.DAPInitFailed(err)
	}

	pending, err := send()
	if err != nil {
		return err
	}

	if err := client.WaitInitialized(ctx, handshakeTimeout); err != nil {
		return errors.DAPTimeout("waiting for initialized event", int(handshakeTimeout.Seconds()))
	}

	if err := client.ConfigurationDone(ctx); err != nil {
		return errors.Wrap(errors.CodeDAPProtocolError, "configuration done failed",
			"The debug adapter rejected the configuration. Try launching with simpler options.", err)
	}

	return await(ctx, pending)
}

// abandon ends a session that failed to start.
func (s *Server) abandon(sessionID string, terminateDebuggee bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.sessionManager.TerminateSession(ctx, sessionID, terminateDebuggee) // may already be gone
}

func missingSessionID() error {
	return errors.MissingParameter("sessionId", "Provide the sessionId returned from debug_launch or debug_attach. Use debug_list_sessions to see active sessions.")
}

func (s *Server) getSessionClient(request mcp.CallToolRequest) (*internaldap.Session, *internaldap.Client, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, nil, missingSessionID()
	}

	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	client := session.Client()
	if client == nil {
		return nil, nil, errors.SessionNoClient(sessionID)
	}
	return session, client, nil
}

// viewableTarget resolves the session and selection of a viewable query.
func (s *Server) viewableTarget(request mcp.CallToolRequest) (bridge.DebugSession, types.Selection, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, nil, missingSessionID()
	}
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}

	if id := request.GetString("trackingId", ""); id != "" &&
		request.GetString("variable", "") == "" && request.GetString("expression", "") == "" {
		sel, err := s.tracked.Resolve(id)
		if err != nil {
			return nil, nil, err
		}
		return sess, sel, nil
	}

	sel, err := directSelection(request)
	if err != nil {
		return nil, nil, err
	}
	return sess, sel, nil
}

// directSelection builds a selection from variable or expression and frameId.
func directSelection(request mcp.CallToolRequest) (types.Selection, error) {
	var frame *int
	if _, ok := request.GetArguments()["frameId"]; ok {
		frame = types.Frame(request.GetInt("frameId", 0))
	}

	if name := request.GetString("variable", ""); name != "" {
		return types.VariableSelection{Name: name, FrameID: frame}, nil
	}
	if expr := request.GetString("expression", ""); expr != "" {
		return types.ExpressionSelection{Expression: expr, FrameID: frame}, nil
	}
	return nil, errors.MissingParameter("variable",
		"Select the object to view with variable (a name), expression (any Python expression) or trackingId.")
}

func objectType(request mcp.CallToolRequest) (types.ObjectType, error) {
	group, err := request.RequireString("group")
	if err != nil {
		return types.ObjectType{}, errors.MissingParameter("group", "Use a group reported by viewable_classify.")
	}
	typ, err := request.RequireString("type")
	if err != nil {
		return types.ObjectType{}, errors.MissingParameter("type", "Use a type reported by viewable_classify.")
	}
	return types.ObjectType{Group: group, Type: typ}, nil
}

// resultTool renders an Ok as JSON and an Err as a tool error carrying the
// error message unchanged.
func resultTool[T any](r result.Result[T], render func(T) interface{}) (*mcp.CallToolResult, error) {
	if !r.IsOk() {
		return mcp.NewToolResultError(r.Message()), nil
	}
	return jsonResult(render(r.Value()))
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

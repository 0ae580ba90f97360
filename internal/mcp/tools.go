package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug and viewable tools allowed by the configuration
func (s *Server) registerTools() {
	// Session Management (both modes)
	s.registerDebugLaunch()
	s.registerDebugAttach()
	s.registerDebugDisconnect()
	s.registerDebugListSessions()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerDebugBreakpoints()
		s.registerDebugContinue()
	}

	// Viewables
	s.registerViewableList()
	s.registerViewableScript()
	s.registerViewableTrack()
	s.registerViewableUntrack()
	if s.config.CanEvaluate() {
		s.registerViewableClassify()
		s.registerViewableDescribe()
		s.registerViewableSerialize()
	}
}

// selectionOptions are the arguments every viewable query accepts.
func selectionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("variable",
			mcp.Description("Name of the variable to view, e.g. 'img'"),
		),
		mcp.WithString("expression",
			mcp.Description("Python expression to view, e.g. 'batch[0]'. Used when variable is not given."),
		),
		mcp.WithString("trackingId",
			mcp.Description("ID returned by viewable_track. Used when neither variable nor expression is given."),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Stack frame ID to evaluate in (default: top frame of the stopped thread)"),
		),
	}
}

func objectTypeOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("group",
			mcp.Required(),
			mcp.Description("Viewable group from viewable_classify, e.g. 'image'"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Viewable type from viewable_classify, e.g. 'pillow_image'"),
		),
	}
}

func tool(name, description string, groups ...[]mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, g := range groups {
		opts = append(opts, g...)
	}
	return mcp.NewTool(name, opts...)
}

// Session Management Tools

func (s *Server) registerDebugLaunch() {
	t := mcp.NewTool("debug_launch",
		mcp.WithDescription("Launch a Python program under debugpy. Returns sessionId needed for all other tools. Use stopOnEntry=true to pause at the first line."),
		mcp.WithString("program",
			mcp.Description("Path to the Python script to debug"),
		),
		mcp.WithString("module",
			mcp.Description("Module to run with -m instead of a script path"),
		),
		mcp.WithString("args",
			mcp.Description("JSON array of program arguments: [\"--epochs\", \"3\"]"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithString("env",
			mcp.Description("JSON object of extra environment variables: {\"SEED\": \"1\"}"),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Stop on entry point (default: false)"),
		),
		mcp.WithString("pythonPath",
			mcp.Description("Path to the Python interpreter, e.g. '/path/to/venv/bin/python'. debugpy must be installed for it."),
		),
		mcp.WithString("configName",
			mcp.Description("Name of a debugpy launch configuration in .vscode/launch.json. Explicit arguments override its values."),
		),
		mcp.WithString("workspace",
			mcp.Description("Folder to search for .vscode/launch.json, walking up (default: server working directory)"),
		),
	)
	s.mcpServer.AddTool(t, s.handleDebugLaunch)
}

func (s *Server) registerDebugAttach() {
	t := mcp.NewTool("debug_attach",
		mcp.WithDescription("Attach to a program already listening with debugpy.listen()."),
		mcp.WithString("host",
			mcp.Description("Host of the debugpy server (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Port of the debugpy server, e.g. 5678. Required unless configName is given."),
		),
		mcp.WithString("configName",
			mcp.Description("Name of a debugpy attach configuration in .vscode/launch.json"),
		),
		mcp.WithString("workspace",
			mcp.Description("Folder to search for .vscode/launch.json, walking up (default: server working directory)"),
		),
	)
	s.mcpServer.AddTool(t, s.handleDebugAttach)
}

func (s *Server) registerDebugDisconnect() {
	t := mcp.NewTool("debug_disconnect",
		mcp.WithDescription("Disconnect from a debug session"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to disconnect from"),
		),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Terminate the debugged process (default: false)"),
		),
	)
	s.mcpServer.AddTool(t, s.handleDebugDisconnect)
}

func (s *Server) registerDebugListSessions() {
	t := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all active debug sessions"),
	)
	s.mcpServer.AddTool(t, s.handleDebugListSessions)
}

// Control Tools (Full mode only)

func (s *Server) registerDebugBreakpoints() {
	t := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Set breakpoints in a source file. This REPLACES all breakpoints in the file."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description("JSON array of breakpoints: [{line: number, condition?: string}]"),
		),
	)
	s.mcpServer.AddTool(t, s.handleDebugBreakpoints)
}

func (s *Server) registerDebugContinue() {
	t := mcp.NewTool("debug_continue",
		mcp.WithDescription("Continue execution and wait until the program stops again, e.g. at the next breakpoint. Viewable tools need a stopped program."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("threadId",
			mcp.Description("The thread ID to continue (default: the thread that stopped last)"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the next stop (default: 30)"),
		),
	)
	s.mcpServer.AddTool(t, s.handleDebugContinue)
}

// Viewable Tools

func (s *Server) registerViewableList() {
	t := mcp.NewTool("viewable_list",
		mcp.WithDescription("List the registered viewables: group, type and file extension of each."),
	)
	s.mcpServer.AddTool(t, s.handleViewableList)
}

func (s *Server) registerViewableScript() {
	t := mcp.NewTool("viewable_script",
		mcp.WithDescription("Show the Python installation script. With a sessionId, the script composed for that session; otherwise one composed from the current registry."),
		mcp.WithString("sessionId",
			mcp.Description("The session ID (optional)"),
		),
	)
	s.mcpServer.AddTool(t, s.handleViewableScript)
}

func (s *Server) registerViewableClassify() {
	s.mcpServer.AddTool(tool("viewable_classify",
		"Report which viewables can display the selected object. Returns a list of {group, type}; an empty list means none.",
		selectionOptions()), s.handleViewableClassify)
}

func (s *Server) registerViewableDescribe() {
	s.mcpServer.AddTool(tool("viewable_describe",
		"Describe the selected object as the given viewable, e.g. width, height and mode of an image.",
		selectionOptions(), objectTypeOptions()), s.handleViewableDescribe)
}

func (s *Server) registerViewableSerialize() {
	s.mcpServer.AddTool(tool("viewable_serialize",
		"Write the selected object to a file on the debuggee's machine, e.g. a PNG for an image. Returns the path.",
		selectionOptions(), objectTypeOptions(),
		[]mcp.ToolOption{mcp.WithString("path",
			mcp.Description("Destination path (default: a new file in the configured output directory)"),
		)}), s.handleViewableSerialize)
}

func (s *Server) registerViewableTrack() {
	t := mcp.NewTool("viewable_track",
		mcp.WithDescription("Remember a selection under an ID so later queries can use trackingId."),
		mcp.WithString("variable",
			mcp.Description("Name of the variable"),
		),
		mcp.WithString("expression",
			mcp.Description("Python expression. Used when variable is not given."),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Pin the selection to a stack frame"),
		),
	)
	s.mcpServer.AddTool(t, s.handleViewableTrack)
}

func (s *Server) registerViewableUntrack() {
	t := mcp.NewTool("viewable_untrack",
		mcp.WithDescription("Forget a tracked selection. Unknown IDs are ignored."),
		mcp.WithString("trackingId",
			mcp.Required(),
			mcp.Description("ID returned by viewable_track"),
		),
	)
	s.mcpServer.AddTool(t, s.handleViewableUntrack)
}

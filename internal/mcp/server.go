// Package mcp exposes debug sessions and viewables as Model Context Protocol
// tools.
//
// Session Management:
//   - debug_launch: Launch a Python program under debugpy
//   - debug_attach: Attach to a running debugpy server
//   - debug_disconnect: Disconnect from a session
//   - debug_list_sessions: List active sessions
//
// Control (full mode only):
//   - debug_breakpoints: Replace the breakpoints of a file
//   - debug_continue: Resume and wait for the next stop
//
// Viewables:
//   - viewable_list: Registered viewables
//   - viewable_script: The installation script for a session
//   - viewable_classify / viewable_describe / viewable_serialize: Query a selected object
//   - viewable_track / viewable_untrack: Keep a selection under an id
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/adapters"
	"github.com/ctagard/dap-viewer/internal/bridge"
	"github.com/ctagard/dap-viewer/internal/config"
	"github.com/ctagard/dap-viewer/internal/dap"
	"github.com/ctagard/dap-viewer/internal/tracking"
	"github.com/ctagard/dap-viewer/internal/version"
	"github.com/ctagard/dap-viewer/internal/viewable"
)

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer      *server.MCPServer
	sessionManager *dap.SessionManager
	adapter        adapters.Adapter
	registry       *viewable.Registry
	bridge         *bridge.Bridge
	tracked        *tracking.Store
	config         *config.Config
	logger         *zap.Logger

	// lookup resolves a session id for the viewable tools.
	lookup func(id string) (bridge.DebugSession, error)
}

// NewServer creates a new dap-viewer server over reg.
func NewServer(cfg *config.Config, reg *viewable.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		"dap-viewer",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	sessionManager := dap.NewSessionManager(cfg.MaxSessions, cfg.SessionTimeout.Std(),
		dap.WithManagerLogger(logger.Named("sessions")))

	b := bridge.New(reg,
		bridge.WithEvalContext(cfg.EvalContext()),
		bridge.WithLogger(logger.Named("bridge")))
	sessionManager.OnEnd(b.EndSession)

	s := &Server{
		mcpServer:      mcpServer,
		sessionManager: sessionManager,
		adapter:        adapters.NewDebugpyAdapter(cfg.Python, logger.Named("debugpy")),
		registry:       reg,
		bridge:         b,
		tracked:        tracking.New(),
		config:         cfg,
		logger:         logger,
	}
	s.lookup = func(id string) (bridge.DebugSession, error) {
		return s.sessionManager.GetSession(id)
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Close shuts down the server
func (s *Server) Close() {
	s.sessionManager.Close()
}

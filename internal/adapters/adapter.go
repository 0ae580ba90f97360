// Package adapters starts debug adapter processes and connects DAP clients
// to them.
//
// The only adapter is debugpy. An Adapter spawns the adapter process and
// builds the launch and attach arguments it understands; Connect and
// SpawnAndConnect turn an address into a ready dap.Client.
package adapters

import (
	"context"
	"net"
	"os/exec"
	"time"

	"github.com/ctagard/dap-viewer/internal/dap"
	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// Adapter defines the interface for a spawnable debug adapter
type Adapter interface {
	// Language returns the language this adapter supports
	Language() types.Language

	// Spawn starts a debug adapter process and returns the address to connect to
	Spawn(ctx context.Context, opts LaunchOptions) (address string, cmd *exec.Cmd, err error)

	// BuildLaunchArgs builds the launch arguments for the debug adapter
	BuildLaunchArgs(opts LaunchOptions) map[string]any

	// BuildAttachArgs builds the attach arguments for the debug adapter
	BuildAttachArgs(opts AttachOptions) map[string]any
}

// LaunchOptions describes the program to start under the debugger.
type LaunchOptions struct {
	Program     string
	Module      string // run with -m instead of a script path
	Args        []string
	Cwd         string
	Env         map[string]string
	StopOnEntry bool
	PythonPath  string // overrides the configured interpreter, e.g. a venv python
}

// AttachOptions describes a running debugpy server to attach to.
type AttachOptions struct {
	Host string
	Port int
}

const (
	connectAttempts = 25
	connectBackoff  = 200 * time.Millisecond
)

// Connect creates a DAP client connected to the given address via TCP,
// retrying while the adapter starts listening.
func Connect(ctx context.Context, address string, maxRetries int, opts ...dap.ClientOption) (*dap.Client, error) {
	var transport *dap.Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = dap.NewTCPTransport(ctx, address)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.AdapterConnectFailed(address, ctx.Err())
		case <-time.After(connectBackoff):
		}
	}

	if err != nil {
		return nil, errors.AdapterConnectFailed(address, err)
	}

	return dap.NewClient(transport, opts...), nil
}

// SpawnAndConnect spawns an adapter and returns a connected client.
func SpawnAndConnect(ctx context.Context, adapter Adapter, opts LaunchOptions, clientOpts ...dap.ClientOption) (*dap.Client, *exec.Cmd, error) {
	address, cmd, err := adapter.Spawn(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	client, err := Connect(ctx, address, connectAttempts, clientOpts...)
	if err != nil {
		// Kill the spawned process if we can't connect
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill() // best-effort cleanup
		}
		return nil, nil, err
	}

	return client, cmd, nil
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

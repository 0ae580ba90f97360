package adapters

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-viewer/internal/config"
	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// TestDebugpyAdapter_Defaults verifies the configured interpreter is used.
func TestDebugpyAdapter_Defaults(t *testing.T) {
	a := NewDebugpyAdapter(config.PythonConfig{}, nil)
	assert.Equal(t, types.LanguagePython, a.Language())
	assert.Equal(t, "python3", a.interpreter(LaunchOptions{}))
	assert.Equal(t, "/venv/bin/python", a.interpreter(LaunchOptions{PythonPath: "/venv/bin/python"}))
}

// TestDebugpyAdapter_BuildLaunchArgs verifies the launch request arguments.
func TestDebugpyAdapter_BuildLaunchArgs(t *testing.T) {
	justMyCode := false
	a := NewDebugpyAdapter(config.PythonConfig{PythonPath: "python3", JustMyCode: &justMyCode}, nil)

	tests := []struct {
		name string
		opts LaunchOptions
		want map[string]any
	}{
		{
			name: "script",
			opts: LaunchOptions{Program: "/src/train.py", StopOnEntry: true},
			want: map[string]any{
				"type": "python", "request": "launch", "console": "internalConsole",
				"program": "/src/train.py", "stopOnEntry": true, "justMyCode": false,
			},
		},
		{
			name: "module with everything",
			opts: LaunchOptions{
				Module:     "pkg.main",
				Args:       []string{"--epochs", "3"},
				Cwd:        "/src",
				Env:        map[string]string{"SEED": "1"},
				PythonPath: "/venv/bin/python",
			},
			want: map[string]any{
				"type": "python", "request": "launch", "console": "internalConsole",
				"module": "pkg.main", "args": []string{"--epochs", "3"}, "cwd": "/src",
				"env": map[string]string{"SEED": "1"}, "python": "/venv/bin/python",
				"justMyCode": false,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, a.BuildLaunchArgs(tc.opts))
		})
	}
}

// TestDebugpyAdapter_BuildAttachArgs verifies the attach request arguments.
func TestDebugpyAdapter_BuildAttachArgs(t *testing.T) {
	a := NewDebugpyAdapter(config.PythonConfig{}, nil)

	got := a.BuildAttachArgs(AttachOptions{Port: 5678})
	assert.Equal(t, map[string]any{
		"type":    "python",
		"request": "attach",
		"connect": map[string]any{"host": "127.0.0.1", "port": 5678},
	}, got)

	got = a.BuildAttachArgs(AttachOptions{Host: "10.0.0.2", Port: 5679})
	assert.Equal(t, "10.0.0.2", got["connect"].(map[string]any)["host"])
}

// TestDetectVenvRoot verifies venv detection through pyvenv.cfg.
func TestDetectVenvRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	python := filepath.Join(root, "bin", "python")

	assert.Empty(t, detectVenvRoot(python))

	require.NoError(t, os.WriteFile(filepath.Join(root, "pyvenv.cfg"), []byte("home = /usr/bin\n"), 0o644))
	assert.Equal(t, root, detectVenvRoot(python))
}

// TestAdapterEnv verifies venv activation and overrides.
func TestAdapterEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyvenv.cfg"), nil, 0o644))
	python := filepath.Join(root, "bin", "python")

	base := []string{"HOME=/home/dev", "PATH=/usr/bin"}
	env := adapterEnv(base, python, map[string]string{"SEED": "7"})

	assert.Contains(t, env, "VIRTUAL_ENV="+root)
	assert.Contains(t, env, "PATH="+filepath.Join(root, "bin")+string(os.PathListSeparator)+"/usr/bin")
	assert.Contains(t, env, "SEED=7")
	assert.Equal(t, []string{"HOME=/home/dev", "PATH=/usr/bin"}, base, "base environment is not modified")

	plain := adapterEnv(base, "python3", nil)
	assert.Equal(t, base, plain)
}

// TestConnect verifies a client is returned once the adapter listens.
func TestConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := Connect(context.Background(), ln.Addr().String(), 3)
	require.NoError(t, err)

	conn := <-accepted
	require.NoError(t, client.Close())
	conn.Close()
}

// TestConnect_Fails verifies retries give up with ADAPTER_CONNECT_FAILED.
func TestConnect_Fails(t *testing.T) {
	port, err := findAvailablePort()
	require.NoError(t, err)

	start := time.Now()
	_, err = Connect(context.Background(), "127.0.0.1:"+strconv.Itoa(port), 2)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAdapterConnectFailed))
	assert.GreaterOrEqual(t, time.Since(start), connectBackoff)
}

// TestConnect_Cancelled verifies cancellation stops the retry loop.
func TestConnect_Cancelled(t *testing.T) {
	port, err := findAvailablePort()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Connect(ctx, "127.0.0.1:"+strconv.Itoa(port), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

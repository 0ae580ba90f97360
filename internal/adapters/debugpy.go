package adapters

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/config"
	"github.com/ctagard/dap-viewer/internal/dap"
	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// DebugpyAdapter implements the Adapter interface for Python/debugpy
type DebugpyAdapter struct {
	pythonPath string
	justMyCode *bool
	logger     *zap.Logger
}

// NewDebugpyAdapter creates a new debugpy adapter
func NewDebugpyAdapter(cfg config.PythonConfig, logger *zap.Logger) *DebugpyAdapter {
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		pythonPath = "python3"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DebugpyAdapter{
		pythonPath: pythonPath,
		justMyCode: cfg.JustMyCode,
		logger:     logger,
	}
}

// Language returns the language this adapter supports
func (d *DebugpyAdapter) Language() types.Language {
	return types.LanguagePython
}

// interpreter returns the per-launch interpreter if given, else the configured one.
func (d *DebugpyAdapter) interpreter(opts LaunchOptions) string {
	if opts.PythonPath != "" {
		return opts.PythonPath
	}
	return d.pythonPath
}

// detectVenvRoot returns the venv root containing pythonPath, or "" if it
// is not inside a venv.
func detectVenvRoot(pythonPath string) string {
	// /path/to/venv/bin/python -> /path/to/venv
	binDir := filepath.Dir(pythonPath)
	venvRoot := filepath.Dir(binDir)

	// pyvenv.cfg is written by python -m venv
	if _, err := os.Stat(filepath.Join(venvRoot, "pyvenv.cfg")); err == nil {
		return venvRoot
	}
	return ""
}

// adapterEnv builds the adapter environment: the inherited one, venv
// activation for pythonPath, then the launch overrides.
func adapterEnv(base []string, pythonPath string, overrides map[string]string) []string {
	env := append([]string(nil), base...)

	if venvRoot := detectVenvRoot(pythonPath); venvRoot != "" {
		env = append(env, "VIRTUAL_ENV="+venvRoot)
		binDir := filepath.Dir(pythonPath)
		for i, kv := range env {
			if strings.HasPrefix(kv, "PATH=") {
				env[i] = "PATH=" + binDir + string(os.PathListSeparator) + kv[len("PATH="):]
				break
			}
		}
	}

	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// Spawn starts a debugpy adapter listening on a free local port
func (d *DebugpyAdapter) Spawn(ctx context.Context, opts LaunchOptions) (string, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return "", nil, errors.AdapterSpawnFailed(err)
	}
	address := "127.0.0.1:" + strconv.Itoa(port)

	pythonPath := d.interpreter(opts)
	cmd := exec.Command(pythonPath,
		"-m", "debugpy.adapter",
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	)
	cmd.Env = adapterEnv(os.Environ(), pythonPath, opts.Env)
	// stdin stays detached; stdout belongs to the MCP transport.
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	// Platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	dap.SetProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return "", nil, errors.AdapterSpawnFailed(err)
	}

	d.logger.Info("Started debugpy adapter",
		zap.String("python", pythonPath),
		zap.String("address", address),
		zap.Int("pid", cmd.Process.Pid))
	return address, cmd, nil
}

// BuildLaunchArgs builds the launch arguments for debugpy
func (d *DebugpyAdapter) BuildLaunchArgs(opts LaunchOptions) map[string]any {
	launchArgs := map[string]any{
		"type":    "python",
		"request": "launch",
		"console": "internalConsole",
	}

	if opts.Module != "" {
		launchArgs["module"] = opts.Module
	} else {
		launchArgs["program"] = opts.Program
	}
	if len(opts.Args) > 0 {
		launchArgs["args"] = opts.Args
	}
	if opts.Cwd != "" {
		launchArgs["cwd"] = opts.Cwd
	}
	if len(opts.Env) > 0 {
		launchArgs["env"] = opts.Env
	}
	if opts.StopOnEntry {
		launchArgs["stopOnEntry"] = true
	}
	if opts.PythonPath != "" {
		launchArgs["python"] = opts.PythonPath
	}
	if d.justMyCode != nil {
		launchArgs["justMyCode"] = *d.justMyCode
	}

	return launchArgs
}

// BuildAttachArgs builds the attach arguments for debugpy
func (d *DebugpyAdapter) BuildAttachArgs(opts AttachOptions) map[string]any {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}

	attachArgs := map[string]any{
		"type":    "python",
		"request": "attach",
		"connect": map[string]any{
			"host": host,
			"port": opts.Port,
		},
	}
	if d.justMyCode != nil {
		attachArgs["justMyCode"] = *d.justMyCode
	}
	return attachArgs
}

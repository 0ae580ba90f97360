package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeFull, cfg.Mode)
	assert.True(t, cfg.CanSpawn())
	assert.True(t, cfg.CanAttach())
	assert.True(t, cfg.CanEvaluate())
	assert.True(t, cfg.CanUseControlTools())
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout.Std())
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, "python3", cfg.Python.PythonPath)
	assert.Equal(t, types.EvalContextRepl, cfg.EvalContext())
	assert.NoError(t, cfg.Validate())
}

// TestLoadConfig_EmptyPath verifies that empty path returns defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxSessions, cfg.MaxSessions)
}

// TestLoadConfig_JSON verifies loading a JSON file over the defaults.
func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"mode": "readonly",
		"allowSpawn": false,
		"maxSessions": 3,
		"sessionTimeout": "5m",
		"requestTimeout": 2000000000,
		"evaluateContext": "watch",
		"python": {"pythonPath": "/opt/venv/bin/python"},
		"viewables": [{"group": "image", "type": "heatmap", "extension": "png", "setupFile": "heatmap.py"}]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeReadOnly, cfg.Mode)
	assert.False(t, cfg.CanSpawn())
	assert.False(t, cfg.CanAttach(), "readonly mode disables attach")
	assert.False(t, cfg.CanUseControlTools())
	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, types.EvalContextWatch, cfg.EvalContext())
	assert.Equal(t, "/opt/venv/bin/python", cfg.Python.PythonPath)
	assert.Equal(t, "info", cfg.Log.Level, "unset fields keep their defaults")

	require.Len(t, cfg.Viewables, 1)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "heatmap.py"), cfg.Viewables[0].SetupFile)
}

// TestLoadConfig_YAML verifies loading a YAML file.
func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
mode: full
maxSessions: 4
sessionTimeout: 90s
requestTimeout: 15s
log:
  level: debug
  format: console
python:
  pythonPath: python3.12
  justMyCode: false
viewables:
  - group: table
    type: polars_frame
    extension: parquet
    setupFile: /etc/dap-viewer/polars.py
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxSessions)
	assert.Equal(t, 90*time.Second, cfg.SessionTimeout.Std())
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, LogConfig{Level: "debug", Format: "console"}, cfg.Log)
	require.NotNil(t, cfg.Python.JustMyCode)
	assert.False(t, *cfg.Python.JustMyCode)
	require.Len(t, cfg.Viewables, 1)
	assert.Equal(t, "/etc/dap-viewer/polars.py", cfg.Viewables[0].SetupFile)
}

// TestLoadConfig_Invalid verifies rejected files carry CONFIG_INVALID.
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad json", "c.json", `{"maxSessions": `},
		{"bad duration", "c.json", `{"sessionTimeout": "soon"}`},
		{"zero sessions", "c.yaml", "maxSessions: 0\n"},
		{"unknown mode", "c.json", `{"mode": "godmode"}`},
		{"unknown context", "c.json", `{"evaluateContext": "clipboard"}`},
		{"unknown log format", "c.yaml", "log:\n  format: xml\n"},
		{"viewable without setup", "c.json", `{"viewables": [{"group": "image", "type": "x"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.file, tc.content))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), err.Error())
		})
	}
}

// TestLoadConfig_Missing verifies a missing file is an error.
func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

// TestDuration_MarshalJSON verifies durations are written as strings.
func TestDuration_MarshalJSON(t *testing.T) {
	data, err := Duration(90 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))
}

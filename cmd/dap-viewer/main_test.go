package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/config"
	"github.com/ctagard/dap-viewer/internal/inject"
	"github.com/ctagard/dap-viewer/internal/version"
	"github.com/ctagard/dap-viewer/internal/viewable"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio.py"), []byte("def wav_is_viewable(obj):\n    return False\n"), 0o644))
	path := filepath.Join(dir, "dap-viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version.Get().String()+"\n", out)

	out, err = execute(t, "", "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version":"`+version.Version+`"`)
}

func TestParseCmd(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"args", "", []string{`"Value(['a', 'b'])"`}, "[\n  \"a\",\n  \"b\"\n]\n"},
		{"stdin", `'Value({"k": "v"})'`, nil, "{\n  \"k\": \"v\"\n}\n"},
		{"none", "None", nil, "null\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, tc.stdin, append([]string{"parse"}, tc.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestParseCmd_Errors(t *testing.T) {
	_, err := execute(t, "", "parse", `'Error("no module named PIL")'`)
	require.Error(t, err)
	assert.Equal(t, "no module named PIL", err.Error())

	_, err = execute(t, "", "parse", "'Value([)'")
	require.Error(t, err)
}

func TestScriptCmd(t *testing.T) {
	out, err := execute(t, "", "script")
	require.NoError(t, err)
	assert.Equal(t, inject.Compose(viewable.Builtins())+"\n", out)
}

func TestUnknownMode(t *testing.T) {
	_, err := execute(t, "", "--mode", "admin", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func TestBadConfig(t *testing.T) {
	_, err := execute(t, "", "--config", filepath.Join(t.TempDir(), "missing.json"), "version")
	require.Error(t, err)
}

func TestBuildRegistry(t *testing.T) {
	path := writeConfig(t, `
viewables:
  - group: audio
    type: wav
    extension: wav
    setupFile: audio.py
  - group: image
    type: pillow_image
    extension: png
    setupFile: audio.py
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	reg, err := buildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, len(viewable.Builtins())+1, reg.Len())

	d, err := reg.Find("audio", "wav")
	require.NoError(t, err)
	assert.Contains(t, d.Setup(), "wav_is_viewable")

	all := reg.All()
	assert.Equal(t, "audio", all[len(all)-1].Group)
}

func TestBuildRegistry_MissingSetupFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Viewables = []config.ViewableConfig{{
		Group: "audio", Type: "wav", Extension: "wav",
		SetupFile: filepath.Join(t.TempDir(), "nope.py"),
	}}

	_, err := buildRegistry(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio/wav")
}

func TestServeMetrics(t *testing.T) {
	stop, err := serveMetrics("127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)
	stop()

	_, err = serveMetrics("not-an-address", zap.NewNop())
	assert.Error(t, err)
}

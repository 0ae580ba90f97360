package inject

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/pyvalue"
	"github.com/ctagard/dap-viewer/internal/viewable"
)

const sampleSetup = `RUNS = globals().get('RUNS', 0) + 1


def sample_is_viewable(obj):
    return isinstance(obj, bytes)


def sample_info(obj):
    return {'size': text(len(obj)), 'runs': text(RUNS)}


def sample_save(path, obj):
    with open(path, 'wb') as f:
        f.write(obj)
    return text(path)
`

func sampleDescriptor() *viewable.Descriptor {
	return viewable.NewDescriptor("raw", "sample", "bin", viewable.StaticSetup(sampleSetup))
}

func brokenDescriptor() *viewable.Descriptor {
	return viewable.NewDescriptor("raw", "broken", "bin", viewable.StaticSetup("raise ValueError('setup exploded')\n"))
}

func panickingDescriptor() *viewable.Descriptor {
	return viewable.NewDescriptor("raw", "panics", "bin", func() string {
		panic("template missing")
	})
}

// TestCompose_Deterministic verifies that the same descriptors produce the same script.
func TestCompose_Deterministic(t *testing.T) {
	descs := append(viewable.Builtins(), sampleDescriptor())
	assert.Equal(t, Compose(descs), Compose(descs))
}

// TestScript_SingleExpression verifies the script is one line with no frame bindings.
func TestScript_SingleExpression(t *testing.T) {
	script := Compose(viewable.Builtins())

	assert.NotContains(t, script, "\n")
	assert.True(t, strings.HasPrefix(script, "exec("))
	assert.True(t, strings.HasSuffix(script, `{'__name__': "_dap_viewer_install"})`))
}

// TestPlan_BlockOrder verifies blocks follow descriptor order.
func TestPlan_BlockOrder(t *testing.T) {
	descs := []*viewable.Descriptor{sampleDescriptor(), brokenDescriptor()}
	plan := NewPlan(descs)

	blocks := plan.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "raw/sample", blocks[0].Key)
	assert.Equal(t, "raw/broken", blocks[1].Key)

	body := plan.Body()
	first := strings.Index(body, `"raw/sample"`)
	second := strings.Index(body, `"raw/broken"`)
	require.NotEqual(t, -1, first)
	assert.Less(t, first, second)
}

// TestPlan_TestExpressionGuardsSetup verifies each setup block is guarded by its test expression.
func TestPlan_TestExpressionGuardsSetup(t *testing.T) {
	body := NewPlan([]*viewable.Descriptor{sampleDescriptor()}).Body()

	guard := `eval("(sample_is_viewable, sample_info, sample_save)", mod.__dict__)`
	setup := `exec(` + viewable.PyString(sampleSetup) + `, mod.__dict__)`
	require.Contains(t, body, guard)
	require.Contains(t, body, setup)
	assert.Less(t, strings.Index(body, guard), strings.Index(body, setup))
}

// TestPlan_PanickingSetupIsolated verifies a Setup that panics does not break the plan.
func TestPlan_PanickingSetupIsolated(t *testing.T) {
	descs := []*viewable.Descriptor{sampleDescriptor(), panickingDescriptor(), brokenDescriptor()}

	var plan *Plan
	require.NotPanics(t, func() { plan = NewPlan(descs) })

	failed := plan.Failed()
	require.Len(t, failed, 1)
	assert.Contains(t, failed["raw/panics"], "template missing")

	body := plan.Body()
	assert.Contains(t, body, `mod.setup_errors["raw/panics"] = "setup code unavailable: template missing"`)
	assert.Contains(t, body, `exec(`+viewable.PyString(sampleSetup))
	assert.Contains(t, body, `(broken_is_viewable, broken_info, broken_save)`)
}

// TestClassifyQuery verifies the combined classification expression.
func TestClassifyQuery(t *testing.T) {
	q := ClassifyQuery("img", []*viewable.Descriptor{sampleDescriptor()})
	assert.Equal(t,
		`__import__("_dap_viewer").call("classify", img, ("raw", "sample", "sample_is_viewable"))`, q)

	assert.Equal(t, `__import__("_dap_viewer").call("classify", (a[0]))`, ClassifyQuery("(a[0])", nil))
}

// TestReportQuery verifies the diagnostics query.
func TestReportQuery(t *testing.T) {
	assert.Equal(t, `__import__("_dap_viewer").call("setup_report")`, ReportQuery())
}

// TestScript_Python runs the installation twice in a real interpreter and
// decodes the helper replies the way an evaluate response would carry them.
func TestScript_Python(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping interpreter test in short mode")
	}
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	descs := append(viewable.Builtins(), sampleDescriptor(), brokenDescriptor(), panickingDescriptor())
	scriptPath := filepath.Join(dir, "install.txt")
	require.NoError(t, os.WriteFile(scriptPath, []byte(Compose(descs)), 0o644))

	driver := `import sys
script = open(sys.argv[1]).read()
eval(script)
eval(script)
for q in sys.argv[2:]:
    print(repr(eval(q)))
print('leaked' if 'mod' in globals() or 'text' in globals() else 'clean')
`
	driverPath := filepath.Join(dir, "driver.py")
	require.NoError(t, os.WriteFile(driverPath, []byte(driver), 0o644))

	sample := sampleDescriptor()
	outPath := filepath.Join(dir, "out.bin")
	queries := []string{
		ReportQuery(),
		ClassifyQuery("b'abc'", descs),
		sample.InfoQuery("b'abc'"),
		sample.InfoQuery("5"),
		viewable.CallQuery("missing_info", "1"),
		sample.SaveQuery("b'abc'", outPath),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, python, append([]string{driverPath, scriptPath}, queries...)...).CombinedOutput()
	require.NoError(t, err, string(out))

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.Len(t, lines, len(queries)+1, string(out))

	// Setup failures are recorded per descriptor; builtins install without their libraries.
	report, err := pyvalue.Parse(lines[0]).Get()
	require.NoError(t, err)
	mapping, ok := report.(pyvalue.Mapping)
	require.True(t, ok, "report is %T", report)
	assert.ElementsMatch(t, []string{"raw/broken", "raw/panics"}, mapping.Keys())

	classified, err := pyvalue.Parse(lines[1]).Get()
	require.NoError(t, err)
	assert.Equal(t, pyvalue.List{pyvalue.Tuple{pyvalue.String("raw"), pyvalue.String("sample")}}, classified)

	// runs stays 1: the second installation skipped the guarded setup.
	info, err := pyvalue.Parse(lines[2]).Get()
	require.NoError(t, err)
	assert.Equal(t, pyvalue.Mapping{
		{Key: "size", Value: pyvalue.String("3")},
		{Key: "runs", Value: pyvalue.String("1")},
	}, info)

	_, err = pyvalue.Parse(lines[3]).Get()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteError))
	assert.Contains(t, err.Error(), "has no len()")

	_, err = pyvalue.Parse(lines[4]).Get()
	assert.True(t, errors.HasCode(err, errors.CodeRemoteError))
	assert.Contains(t, err.Error(), "missing_info is not installed")

	saved, err := pyvalue.Parse(lines[5]).Get()
	require.NoError(t, err)
	assert.Equal(t, pyvalue.String(outPath), saved)
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	assert.Equal(t, "clean", lines[6])
}

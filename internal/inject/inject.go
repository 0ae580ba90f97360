// Package inject composes the Python installation script that defines the
// viewable helpers inside a debuggee.
//
// The script is a single expression so it can be sent as one evaluate
// request. It creates the helper module (viewable.ModuleName) on first use,
// refreshes the base helpers every time, and then for each descriptor runs
// its test expression and only on failure its setup code. Running the same
// script twice therefore performs no additional setup, and a failing setup
// block is recorded in the module's setup_errors without affecting the
// others. Nothing is bound in the frame the script is evaluated in.
package inject

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ctagard/dap-viewer/internal/viewable"
)

//go:embed python/base.py
var baseHelpers string

// installScope is the __name__ the installation body runs under.
const installScope = "_dap_viewer_install"

// Block is the installation step for one descriptor.
type Block struct {
	Key  string
	Code string
	// Err is set when the descriptor's Setup could not produce code. The
	// block then only records the failure remotely.
	Err error
}

// Plan is a composed installation script.
type Plan struct {
	blocks []Block
	body   string
}

// NewPlan composes the installation for descs, in order. A Setup func that
// panics is isolated to its own block.
func NewPlan(descs []*viewable.Descriptor) *Plan {
	p := &Plan{blocks: make([]Block, 0, len(descs))}

	var sb strings.Builder
	writePrelude(&sb)
	for _, d := range descs {
		b := newBlock(d)
		p.blocks = append(p.blocks, b)
		writeBlock(&sb, d, b)
	}
	p.body = sb.String()
	return p
}

// Compose returns the installation script for descs.
func Compose(descs []*viewable.Descriptor) string {
	return NewPlan(descs).Script()
}

// Script returns the installation as a single Python expression.
func (p *Plan) Script() string {
	return fmt.Sprintf("exec(%s, {'__name__': %s})", viewable.PyString(p.body), viewable.PyString(installScope))
}

// Body returns the Python source the script executes.
func (p *Plan) Body() string {
	return p.body
}

// Blocks returns the per-descriptor steps in installation order.
func (p *Plan) Blocks() []Block {
	out := make([]Block, len(p.blocks))
	copy(out, p.blocks)
	return out
}

// Failed returns the keys whose setup code could not be produced locally,
// with the reason.
func (p *Plan) Failed() map[string]string {
	failed := make(map[string]string)
	for _, b := range p.blocks {
		if b.Err != nil {
			failed[b.Key] = b.Err.Error()
		}
	}
	return failed
}

func newBlock(d *viewable.Descriptor) (b Block) {
	b.Key = d.Key()
	defer func() {
		if r := recover(); r != nil {
			b.Code = ""
			b.Err = fmt.Errorf("setup code unavailable: %v", r)
		}
	}()
	b.Code = d.Setup()
	return b
}

func writePrelude(sb *strings.Builder) {
	name := viewable.PyString(viewable.ModuleName)
	sb.WriteString("import sys\n")
	fmt.Fprintf(sb, "mod = sys.modules.get(%s)\n", name)
	sb.WriteString("if mod is None:\n")
	fmt.Fprintf(sb, "    mod = type(sys)(%s)\n", name)
	sb.WriteString("    mod.setup_errors = {}\n")
	fmt.Fprintf(sb, "    sys.modules[%s] = mod\n", name)
	fmt.Fprintf(sb, "exec(%s, mod.__dict__)\n", viewable.PyString(baseHelpers))
}

func writeBlock(sb *strings.Builder, d *viewable.Descriptor, b Block) {
	key := viewable.PyString(b.Key)
	if b.Err != nil {
		fmt.Fprintf(sb, "mod.setup_errors[%s] = %s\n", key, viewable.PyString(b.Err.Error()))
		return
	}
	sb.WriteString("try:\n")
	fmt.Fprintf(sb, "    eval(%s, mod.__dict__)\n", viewable.PyString(d.TestExpression))
	sb.WriteString("except BaseException:\n")
	sb.WriteString("    try:\n")
	fmt.Fprintf(sb, "        exec(%s, mod.__dict__)\n", viewable.PyString(b.Code))
	fmt.Fprintf(sb, "        mod.setup_errors.pop(%s, None)\n", key)
	sb.WriteString("    except BaseException as err:\n")
	fmt.Fprintf(sb, "        mod.setup_errors[%s] = repr(err)\n", key)
}

// ClassifyQuery builds the single expression that classifies obj against
// every descriptor in descs. It evaluates to a list of (group, type) tuples,
// one for each descriptor whose predicate accepts obj.
func ClassifyQuery(obj string, descs []*viewable.Descriptor) string {
	args := make([]string, 0, len(descs)+1)
	args = append(args, obj)
	for _, d := range descs {
		args = append(args, viewable.PyTuple(viewable.PyString(d.Group), viewable.PyString(d.Type), viewable.PyString(d.Predicate)))
	}
	return viewable.CallQuery("classify", args...)
}

// ReportQuery builds the expression returning the recorded setup failures
// as a mapping of "group/type" to message.
func ReportQuery() string {
	return viewable.CallQuery("setup_report")
}

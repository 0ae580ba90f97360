package viewable

import (
	"strconv"
	"strings"
)

// ModuleName is the sys.modules key of the helper module in the debuggee.
const ModuleName = "_dap_viewer"

// ModuleRef is an expression resolving to the helper module from any frame.
func ModuleRef() string {
	return "__import__(" + PyString(ModuleName) + ")"
}

// CallQuery builds an expression invoking a helper through the module's call
// function, which turns the outcome into a Value(...) or Error(...) reply.
func CallQuery(helper string, args ...string) string {
	var sb strings.Builder
	sb.WriteString(ModuleRef())
	sb.WriteString(".call(")
	sb.WriteString(PyString(helper))
	for _, a := range args {
		sb.WriteString(", ")
		sb.WriteString(a)
	}
	sb.WriteString(")")
	return sb.String()
}

// PyString renders s as a Python 3 string literal. Go's quoting escapes
// (\n, \t, \\, \", \xNN, \uNNNN, \UNNNNNNNN) are all valid Python escapes.
func PyString(s string) string {
	return strconv.Quote(s)
}

// PyTuple renders already-encoded items as a Python tuple literal.
func PyTuple(items ...string) string {
	if len(items) == 1 {
		return "(" + items[0] + ",)"
	}
	return "(" + strings.Join(items, ", ") + ")"
}

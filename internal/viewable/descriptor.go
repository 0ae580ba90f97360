// Package viewable defines the catalogue of remote object shapes dap-viewer
// knows how to inspect.
//
// A Descriptor pairs an ObjectType (group, type) with the Python setup code
// that defines its helpers inside the debuggee and with builders for the
// query expressions that call those helpers. Helpers follow a naming
// convention keyed on the type name:
//
//	<type>_is_viewable(obj) -> bool
//	<type>_info(obj)        -> dict of str to str
//	<type>_save(path, obj)  -> str
//
// Helpers live in a dedicated module (see ModuleName) rather than in the
// user's namespace, and every query goes through the module's call helper,
// which produces the Value(...)/Error(...) reply decoded by package pyvalue.
package viewable

import (
	"fmt"
	"os"
	"regexp"

	"github.com/ctagard/dap-viewer/pkg/types"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Descriptor describes one viewable object shape. It is never mutated after
// registration.
type Descriptor struct {
	// Group is the display category, e.g. "image".
	Group string
	// Type is the concrete kind, e.g. "pillow_image". It prefixes helper names.
	Type string
	// Extension is the file extension Serialize writes, without the dot.
	Extension string

	// Setup returns the Python snippet defining the helpers. It runs inside
	// the helper module namespace, where sys, text and wrap are available.
	Setup func() string
	// TestExpression references the helpers; when it evaluates without
	// raising, Setup is not run again.
	TestExpression string
	// Predicate names the remote function deciding whether an object is of this type.
	Predicate string

	// InfoQuery builds the expression describing obj.
	InfoQuery func(obj string) string
	// SaveQuery builds the expression writing obj to path.
	SaveQuery func(obj, path string) string
}

// NewDescriptor builds a descriptor whose helpers follow the naming convention.
func NewDescriptor(group, typ, extension string, setup func() string) *Descriptor {
	info := typ + "_info"
	save := typ + "_save"
	return &Descriptor{
		Group:          group,
		Type:           typ,
		Extension:      extension,
		Setup:          setup,
		TestExpression: fmt.Sprintf("(%s_is_viewable, %s, %s)", typ, info, save),
		Predicate:      typ + "_is_viewable",
		InfoQuery: func(obj string) string {
			return CallQuery(info, obj)
		},
		SaveQuery: func(obj, path string) string {
			return CallQuery(save, PyString(path), obj)
		},
	}
}

// StaticSetup returns a Setup func for a fixed snippet.
func StaticSetup(code string) func() string {
	return func() string { return code }
}

// FromFile builds a descriptor whose setup code is read from a Python file.
func FromFile(group, typ, extension, path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setup code for %s/%s: %w", group, typ, err)
	}
	return NewDescriptor(group, typ, extension, StaticSetup(string(data))), nil
}

// ObjectType returns the descriptor identity.
func (d *Descriptor) ObjectType() types.ObjectType {
	return types.ObjectType{Group: d.Group, Type: d.Type}
}

// Key returns "group/type".
func (d *Descriptor) Key() string {
	return d.ObjectType().String()
}

// Validate checks the fields every consumer relies on.
func (d *Descriptor) Validate() error {
	switch {
	case d.Group == "":
		return fmt.Errorf("viewable descriptor has no group")
	case !identifier.MatchString(d.Type):
		return fmt.Errorf("viewable type %q is not a Python identifier", d.Type)
	case !identifier.MatchString(d.Predicate):
		return fmt.Errorf("viewable %s: predicate %q is not a Python identifier", d.Key(), d.Predicate)
	case d.Setup == nil:
		return fmt.Errorf("viewable %s has no setup code", d.Key())
	case d.TestExpression == "":
		return fmt.Errorf("viewable %s has no test expression", d.Key())
	case d.InfoQuery == nil || d.SaveQuery == nil:
		return fmt.Errorf("viewable %s is missing query builders", d.Key())
	}
	return nil
}

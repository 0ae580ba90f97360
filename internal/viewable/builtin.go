package viewable

import (
	"embed"
	"fmt"
)

//go:embed python/*.py
var setupFS embed.FS

// builtin lists the catalogue in registration order.
var builtin = []struct {
	group, typ, ext string
}{
	{"image", "pillow_image", "png"},
	{"image", "numpy_image", "png"},
	{"plot", "matplotlib_figure", "png"},
	{"tensor", "numpy_array", "npy"},
	{"tensor", "torch_tensor", "pt"},
	{"table", "pandas_dataframe", "csv"},
}

// Builtins returns fresh descriptors for the built-in catalogue. Setup code
// imports nothing eagerly, so installing it never fails merely because a
// library is missing from the debuggee.
func Builtins() []*Descriptor {
	out := make([]*Descriptor, 0, len(builtin))
	for _, b := range builtin {
		out = append(out, NewDescriptor(b.group, b.typ, b.ext, embeddedSetup(b.typ)))
	}
	return out
}

func embeddedSetup(typ string) func() string {
	return func() string {
		data, err := setupFS.ReadFile("python/" + typ + ".py")
		if err != nil {
			panic(fmt.Sprintf("missing embedded setup for %s: %v", typ, err))
		}
		return string(data)
	}
}

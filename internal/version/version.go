// Package version provides version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of dap-viewer. Release builds override it
// with -ldflags "-X github.com/ctagard/dap-viewer/internal/version.Version=...".
var Version = "0.2.0"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the version and the VCS revision embedded by the Go toolchain.
func Get() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Revision = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

// String returns a one-line description, e.g. "dap-viewer 0.2.0 (abc1234, go1.25.4)".
func (i Info) String() string {
	rev := i.Revision
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev == "" {
		return fmt.Sprintf("dap-viewer %s (%s)", i.Version, i.GoVersion)
	}
	if i.Modified {
		rev += "-dirty"
	}
	return fmt.Sprintf("dap-viewer %s (%s, %s)", i.Version, rev, i.GoVersion)
}

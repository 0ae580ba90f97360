package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "1.0.0", GoVersion: "go1.25.4"}, "dap-viewer 1.0.0 (go1.25.4)"},
		{Info{Version: "1.0.0", GoVersion: "go1.25.4", Revision: "0123456789abcdef"}, "dap-viewer 1.0.0 (0123456, go1.25.4)"},
		{Info{Version: "1.0.0", GoVersion: "go1.25.4", Revision: "0123456789abcdef", Modified: true}, "dap-viewer 1.0.0 (0123456-dirty, go1.25.4)"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.info.String())
	}
}

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSelection_Source verifies how selections render as call arguments.
func TestSelection_Source(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want string
	}{
		{"variable", VariableSelection{Name: "img"}, "img"},
		{"expression", ExpressionSelection{Expression: "frames[0] * 2"}, "(frames[0] * 2)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.sel.Source())
		})
	}
}

// TestSelection_Frame verifies pinned and unpinned frames.
func TestSelection_Frame(t *testing.T) {
	_, pinned := VariableSelection{Name: "x"}.Frame()
	assert.False(t, pinned)

	id, pinned := ExpressionSelection{Expression: "x", FrameID: Frame(0)}.Frame()
	assert.True(t, pinned)
	assert.Equal(t, 0, id)
}

// TestParseEvalContext verifies context validation.
func TestParseEvalContext(t *testing.T) {
	for _, s := range []string{"watch", "REPL", "hover"} {
		_, err := ParseEvalContext(s)
		assert.NoError(t, err, s)
	}

	_, err := ParseEvalContext("clipboard")
	assert.Error(t, err)
}

// TestObjectType_String verifies the group/type rendering.
func TestObjectType_String(t *testing.T) {
	assert.Equal(t, "image/pillow_image", ObjectType{Group: "image", Type: "pillow_image"}.String())
}

// TestSessionInfo_JSON verifies field names used by the tool surface.
func TestSessionInfo_JSON(t *testing.T) {
	info := SessionInfo{SessionID: "s1", Language: LanguagePython, Status: SessionStatusStopped}

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"s1","language":"python","status":"stopped"}`, string(data))
}

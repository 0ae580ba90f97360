package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ctagard/dap-viewer/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New(config.LogConfig{Level: "warn", Format: "console"}, true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "verbose wins over the configured level")

	_, err = New(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)
}

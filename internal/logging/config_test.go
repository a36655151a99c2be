package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stdout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejectsBadFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsNegativeCallerSkip(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Caller.Skip = -1
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsEmptyFieldValue(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Fields["empty"] = ""
	assert.Error(t, cfg.Validate())
}

func TestLevelFromString_ValidLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"trace", TraceLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := LevelFromString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelFromString_InvalidFallsBackToInfo(t *testing.T) {
	level, err := LevelFromString("not-a-level")
	assert.Error(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}

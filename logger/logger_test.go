package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/warp/yield-pacing/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{"debug", "debug", zapcore.DebugLevel},
		{"warn", "warn", zapcore.WarnLevel},
		{"garbage falls back to info", "loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(&config.LoggingConfig{Level: tt.level, Format: "json"}, &config.AppConfig{Name: "test"})
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	l, err := New(&config.LoggingConfig{Level: "info", Format: "console"}, &config.AppConfig{Environment: "development"})
	require.NoError(t, err)
	assert.NotNil(t, WithAdvisor(WithRequest(l, "GET", "/health", "r1"), "30", "テスト"))
}

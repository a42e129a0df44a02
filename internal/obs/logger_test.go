// Copyright 2025 James Ross
package obs

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"info":  zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
	}
	for level, want := range cases {
		logger, err := NewLogger(level)
		if err != nil {
			t.Fatalf("NewLogger(%q) error = %v", level, err)
		}
		if !logger.Core().Enabled(want) {
			t.Errorf("NewLogger(%q): expected level %v to be enabled", level, want)
		}
	}
}

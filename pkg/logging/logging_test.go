package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tc := range tests {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestInit_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Debug("Test", "debug message %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Debug should be filtered at INFO level, got %q", buf.String())
	}

	Info("Test", "info message %d", 2)
	out := buf.String()
	if !strings.Contains(out, "info message 2") {
		t.Errorf("Expected info message in output, got %q", out)
	}
	if !strings.Contains(out, "subsystem=Test") {
		t.Errorf("Expected subsystem attribute in output, got %q", out)
	}
}

func TestError_IncludesErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Test", errors.New("boom"), "operation failed")
	out := buf.String()
	if !strings.Contains(out, "error=boom") {
		t.Errorf("Expected error attribute in output, got %q", out)
	}
}

func TestTruncateSessionID(t *testing.T) {
	if got := TruncateSessionID("short"); got != "short" {
		t.Errorf("Short IDs should pass through, got %q", got)
	}
	if got := TruncateSessionID("0123456789abcdef"); got != "01234567..." {
		t.Errorf("Expected truncated ID, got %q", got)
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected zapcore.Level
	}{
		{name: "debug level", input: "debug", expected: zapcore.DebugLevel},
		{name: "info level", input: "info", expected: zapcore.InfoLevel},
		{name: "warn level", input: "warn", expected: zapcore.WarnLevel},
		{name: "warning level", input: "warning", expected: zapcore.WarnLevel},
		{name: "error level", input: "error", expected: zapcore.ErrorLevel},
		{name: "uppercase DEBUG", input: "DEBUG", expected: zapcore.DebugLevel},
		{name: "padded warn", input: " warn ", expected: zapcore.WarnLevel},
		{name: "empty string defaults to info", input: "", expected: zapcore.InfoLevel},
		{name: "unknown level defaults to info", input: "verbose", expected: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewConsoleLogger(t *testing.T) {
	logger := New(Config{Level: "debug", Format: "console"})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level not enabled")
	}
	logger.Info("test message")
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "farecast.log")
	logger := New(Config{Level: "warn", File: path})

	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
	if got := string(data); !strings.Contains(got, "kept") || strings.Contains(got, "dropped") {
		t.Errorf("unexpected log contents: %s", got)
	}
}

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tis24dev/blocksave/internal/types"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(types.LogLevelInfo, false)
	logger.SetOutput(&buf)

	logger.Debug("hidden debug line")
	logger.Info("visible info line")
	logger.Warning("visible warning line")

	out := buf.String()
	if strings.Contains(out, "hidden debug line") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(out, "visible info line") {
		t.Error("info line missing from output")
	}
	if !strings.Contains(out, "visible warning line") {
		t.Error("warning line missing from output")
	}
}

func TestLoggerCounters(t *testing.T) {
	logger := New(types.LogLevelDebug, false)
	logger.SetOutput(&bytes.Buffer{})

	if logger.HasWarnings() || logger.HasErrors() {
		t.Fatal("fresh logger should have no warnings or errors")
	}

	logger.Warning("a warning")
	if !logger.HasWarnings() {
		t.Error("expected HasWarnings after Warning")
	}

	logger.Error("an error")
	if !logger.HasErrors() {
		t.Error("expected HasErrors after Error")
	}
}

func TestLoggerFileMirror(t *testing.T) {
	var buf bytes.Buffer
	logger := New(types.LogLevelDebug, true)
	logger.SetOutput(&buf)

	logPath := filepath.Join(t.TempDir(), "session.log")
	if err := logger.OpenLogFile(logPath); err != nil {
		t.Fatalf("OpenLogFile failed: %v", err)
	}

	logger.Info("mirrored line")
	if err := logger.CloseLogFile(); err != nil {
		t.Fatalf("CloseLogFile failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "mirrored line") {
		t.Error("log file missing mirrored line")
	}
	if strings.Contains(string(data), "\033[") {
		t.Error("log file must not contain ANSI color codes")
	}
}

func TestLoggerStepAndSkipLabels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(types.LogLevelInfo, false)
	logger.SetOutput(&buf)

	logger.Step("verifying archive")
	logger.Skip("tool not available")

	out := buf.String()
	if !strings.Contains(out, "STEP") || !strings.Contains(out, "verifying archive") {
		t.Error("STEP line missing from output")
	}
	if !strings.Contains(out, "SKIP") || !strings.Contains(out, "tool not available") {
		t.Error("SKIP line missing from output")
	}
}

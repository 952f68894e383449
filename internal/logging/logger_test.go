package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeNoopWhenDisabled(t *testing.T) {
	debugMode, logsDir = false, ""
	if err := Initialize(t.TempDir(), false, "info"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	l := Get(CategoryRunner)
	l.Info("should not write anything")
	if logsDir != "" {
		t.Fatalf("logsDir should remain empty when debug mode is off, got %q", logsDir)
	}
}

func TestInitializeRequiresWorkspaceInDebugMode(t *testing.T) {
	debugMode, logsDir = false, ""
	if err := Initialize("", true, "info"); err == nil {
		t.Fatal("expected error for empty workspace in debug mode")
	}
}

func TestGetWritesLogFile(t *testing.T) {
	ws := t.TempDir()
	defer func() { debugMode, logsDir = false, "" }()

	if err := Initialize(ws, true, "debug"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryAggregator)
	l.Info("decision=%s", "PASS")

	matches, err := filepath.Glob(filepath.Join(ws, ".cerberus", "logs", "*_aggregator.log"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one aggregator log file, got %v", matches)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "decision=PASS") {
		t.Fatalf("log file missing expected content, got: %s", data)
	}
}

func TestLevelFiltering(t *testing.T) {
	ws := t.TempDir()
	defer func() { debugMode, logsDir = false, "" }()

	if err := Initialize(ws, true, "warn"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryParser)
	l.Debug("should be filtered")
	l.Info("should also be filtered")
	l.Warn("visible warning")

	matches, _ := filepath.Glob(filepath.Join(ws, ".cerberus", "logs", "*_parser.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one parser log file, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "should be filtered") || strings.Contains(content, "should also be filtered") {
		t.Fatalf("level filtering failed, got: %s", content)
	}
	if !strings.Contains(content, "visible warning") {
		t.Fatalf("expected warning to be logged, got: %s", content)
	}
}

package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	resetForTest()

	err := Init(false)
	if err != nil {
		t.Fatalf("Init(false) failed: %v", err)
	}

	if Enabled() {
		t.Error("Enabled() should return false when initialized with false")
	}

	// Logging should be no-ops
	Log("test message")
	Logf("test %s", "formatted")
	Logger("update").Info("discarded")
}

func useTempLogPath(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	origGetLogPath := getLogPath
	getLogPath = func() (string, error) {
		return filepath.Join(tmpDir, LogDirName, LogFileName), nil
	}
	t.Cleanup(func() {
		getLogPath = origGetLogPath
		Close()
		resetForTest()
	})
	return filepath.Join(tmpDir, LogDirName, LogFileName)
}

func TestInit_Enabled(t *testing.T) {
	resetForTest()
	logPath := useTempLogPath(t)

	if err := Init(true); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}

	if !Enabled() {
		t.Error("Enabled() should return true when initialized with true")
	}

	Log("test message")
	Logf("test %s %d", "formatted", 42)
	Logger("update").WithField("stage", "checking").Info("resolving")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	contentStr := string(content)
	for _, want := range []string{"debug log started", "test message", "test formatted 42", "component=update", "stage=checking"} {
		if !strings.Contains(contentStr, want) {
			t.Errorf("log file missing %q:\n%s", want, contentStr)
		}
	}
}

func TestInit_LevelFiltersDebug(t *testing.T) {
	resetForTest()
	logPath := useTempLogPath(t)

	if err := Init(true, WithLevel("info")); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Log("hidden debug line")
	Logger("update").Info("visible info line")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(content), "hidden debug line") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(string(content), "visible info line") {
		t.Error("info line should be written")
	}
}

func TestInit_InvalidLevel(t *testing.T) {
	resetForTest()
	useTempLogPath(t)

	if err := Init(true, WithLevel("loud")); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestInit_CustomFile(t *testing.T) {
	resetForTest()
	useTempLogPath(t)

	custom := filepath.Join(t.TempDir(), "nested", "custom.log")
	if err := Init(true, WithFile(custom), WithMaxSize(1)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Log("to custom file")

	content, err := os.ReadFile(custom)
	if err != nil {
		t.Fatalf("Failed to read custom log: %v", err)
	}
	if !strings.Contains(string(content), "to custom file") {
		t.Error("custom log file should contain message")
	}
}

func TestClose(t *testing.T) {
	resetForTest()
	useTempLogPath(t)

	if err := Init(true); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}

	// Multiple closes should be safe
	Close()
	Close()
	Close()
}

func TestGetLogPath(t *testing.T) {
	path, err := GetLogPath()
	if err != nil {
		t.Fatalf("GetLogPath() failed: %v", err)
	}

	if !strings.HasSuffix(path, filepath.Join(LogDirName, LogFileName)) {
		t.Errorf("GetLogPath() = %q, want suffix %q", path, filepath.Join(LogDirName, LogFileName))
	}
}

// resetForTest resets the package state for testing.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()

	closeSinkLocked()
	enabled = false
	logger = nil
}

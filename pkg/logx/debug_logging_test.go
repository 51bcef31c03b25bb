package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDebugToggle verifies debug logging can be enabled/disabled
func TestDebugToggle(t *testing.T) {
	SetDebugConfig(false, false, ".")
	SetDebugDomains(nil)

	logger := NewLogger("test-module")

	if IsDebugEnabled() {
		t.Error("Debug should be disabled by default")
	}

	SetDebugConfig(true, false, "")

	if !IsDebugEnabled() {
		t.Error("Debug should be enabled after SetDebugConfig")
	}

	SetDebugConfig(false, false, "")

	if IsDebugEnabled() {
		t.Error("Debug should be disabled after SetDebugConfig(false)")
	}

	logger.Debug("This should not appear when disabled")

	SetDebugConfig(true, false, "")
	logger.Debug("This should appear when enabled")
}

// TestDebugToFile verifies file-based debug logging
func TestDebugToFile(t *testing.T) {
	tempDir := t.TempDir()
	logger := NewLogger("test-module")

	SetDebugConfig(true, true, tempDir)

	testMessage := "Test debug message with data: %s %d"
	testArgs := []interface{}{"hello", 42}
	filename := "test_debug.log"

	logger.DebugToFile(filename, testMessage, testArgs...)

	filePath := filepath.Join(tempDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Errorf("Debug file was not created: %s", filePath)
		return
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read debug file: %v", err)
	}

	contentStr := string(content)

	if !strings.Contains(contentStr, "[test-module]") {
		t.Error("Debug file should contain agent ID")
	}

	if !strings.Contains(contentStr, "DEBUG:") {
		t.Error("Debug file should contain DEBUG level")
	}

	if !strings.Contains(contentStr, "Test debug message with data: hello 42") {
		t.Error("Debug file should contain formatted message")
	}

	SetDebugConfig(false, false, "")
}

// TestDebugToFile_DisabledNoFiles verifies no files created when debug disabled
func TestDebugToFile_DisabledNoFiles(t *testing.T) {
	tempDir := t.TempDir()
	logger := NewLogger("test-module")

	SetDebugConfig(false, true, tempDir)

	filename := "should_not_exist.log"
	logger.DebugToFile(filename, "This should not create a file")

	filePath := filepath.Join(tempDir, filename)
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("Debug file should not be created when debug is disabled")
	}
}

// TestDebugToFile_NoFileLogging verifies console-only debug mode
func TestDebugToFile_NoFileLogging(t *testing.T) {
	tempDir := t.TempDir()
	logger := NewLogger("test-module")

	SetDebugConfig(true, false, tempDir)

	filename := "should_not_exist.log"
	logger.DebugToFile(filename, "This should only go to console")

	filePath := filepath.Join(tempDir, filename)
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("Debug file should not be created when file logging is disabled")
	}
}

// TestDebugState verifies the state transition logging convenience method
func TestDebugState(t *testing.T) {
	logger := NewLogger("test-signaler")

	SetDebugConfig(true, false, "")
	defer SetDebugConfig(false, false, "")

	logger.DebugState("transition", "Initializing")
	logger.DebugState("enter", "Initialized", "from Initializing")
}

// TestConcurrentDebugConfig verifies thread-safe configuration changes
func TestConcurrentDebugConfig(t *testing.T) {
	const numGoroutines = 10
	const numIterations = 100

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()

			logger := NewLogger("concurrent-module")

			for j := 0; j < numIterations; j++ {
				enabled := (j % 2) == 0
				SetDebugConfig(enabled, false, "")

				logger.Debug("Concurrent debug test %d-%d", id, j)

				IsDebugEnabled()
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Concurrent test timed out")
		}
	}
}

// TestDebugFileCreation verifies debug log directory creation
func TestDebugFileCreation(t *testing.T) {
	tempDir := t.TempDir()
	nestedDir := filepath.Join(tempDir, "logs", "debug")

	logger := NewLogger("test-module")

	SetDebugConfig(true, true, nestedDir)

	logger.DebugToFile("nested_test.log", "Testing nested directory creation")

	if _, err := os.Stat(nestedDir); os.IsNotExist(err) {
		t.Errorf("Debug directory was not created: %s", nestedDir)
	}

	filePath := filepath.Join(nestedDir, "nested_test.log")
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Errorf("Debug file was not created: %s", filePath)
	}

	SetDebugConfig(false, false, "")
}

// TestDebugBackwardsCompatibility verifies the plain level methods still work
// alongside the debug-gated ones.
func TestDebugBackwardsCompatibility(t *testing.T) {
	logger := NewLogger("legacy-module")

	SetDebugConfig(true, false, "")
	defer SetDebugConfig(false, false, "")

	logger.Debug("Legacy debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")
}

// TestReplaceScatteredPatterns demonstrates DebugToFile replacing ad hoc
// fmt.Sprintf + os.WriteFile call sites.
func TestReplaceScatteredPatterns(t *testing.T) {
	tempDir := t.TempDir()
	logger := NewLogger("pattern-test")

	SetDebugConfig(true, true, tempDir)
	defer SetDebugConfig(false, false, "")

	status := "initialized"
	logger.DebugToFile("handle_result_debug.log", "module insertion completed - status=%s", status)

	filePath := filepath.Join(tempDir, "handle_result_debug.log")
	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read debug file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "module insertion completed - status=initialized") {
		t.Error("Debug file should contain the formatted message")
	}
}

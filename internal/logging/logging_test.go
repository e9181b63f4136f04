package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLoggerWritesFormattedLines(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	var calls []string
	logger, err := NewLogger(filepath.Join(dir, "app"), false, "info", func(level, logType, message, line string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, level+"|"+logType+"|"+message)
	})
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetLogFilePath() != filepath.Join(dir, "app.log") {
		t.Fatalf("path = %s", logger.GetLogFilePath())
	}

	log := NewSafeLogger(logger)
	log.Debugf("hidden %d", 1)
	log.Infof("kernel started pid=%d", 42)
	log.Kernel("warn", "dial tcp: timeout")
	logger.Close()

	data, err := os.ReadFile(logger.GetLogFilePath())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if strings.Contains(text, "hidden") {
		t.Errorf("debug line written at info level:\n%s", text)
	}
	if !strings.Contains(text, "[INFO] [app] kernel started pid=42\n") {
		t.Errorf("missing app line:\n%s", text)
	}
	if !strings.Contains(text, "[WARN] [kernel] dial tcp: timeout\n") {
		t.Errorf("missing kernel line:\n%s", text)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(calls, ",") != "INFO|app|kernel started pid=42,WARN|kernel|dial tcp: timeout" {
		t.Errorf("callbacks = %v", calls)
	}
}

func TestLoggerArchivesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("previous run\n"), 0644); err != nil {
		t.Fatal(err)
	}

	logger, err := NewLogger(path, false, "")
	if err != nil {
		t.Fatal(err)
	}
	logger.Close()

	matches, _ := filepath.Glob(path + ".*")
	if len(matches) != 1 {
		t.Fatalf("archives = %v", matches)
	}
	if data, _ := os.ReadFile(matches[0]); string(data) != "previous run\n" {
		t.Fatalf("archive content = %q", data)
	}
}

func TestLogLevels(t *testing.T) {
	if _, err := NewLogger(filepath.Join(t.TempDir(), "x.log"), false, "verbose"); err == nil {
		t.Fatal("invalid level accepted")
	}

	logger, err := NewLogger(filepath.Join(t.TempDir(), "x.log"), false, "WARN")
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()
	if logger.GetLogLevel() != "warn" {
		t.Fatalf("level = %s", logger.GetLogLevel())
	}
	logger.SetLogLevel("nonsense")
	if logger.GetLogLevel() != "warn" {
		t.Fatalf("invalid level should be ignored")
	}
	logger.SetLogLevel("debug")
	if logger.GetLogLevel() != "debug" {
		t.Fatalf("level = %s", logger.GetLogLevel())
	}
}

func TestSafeLoggerNil(t *testing.T) {
	var sl *SafeLogger
	sl.Infof("nothing %s", "happens")
	sl.Kernel("error", "line")
	if sl.IsReady() || NewSafeLogger(nil).IsReady() {
		t.Fatal("nil logger reported ready")
	}
}

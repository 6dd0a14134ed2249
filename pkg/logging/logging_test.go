package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStdoutOnly(t *testing.T) {
	logger, closeFn, err := New("", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	logger.Infow("hello", "k", "v")
}

func TestNewWithFileWritesToDirectory(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")

	logger, closeFn, err := New(logDir, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debugw("debug message", "n", 1)
	closeFn()

	if _, err := os.Stat(filepath.Join(logDir, "crank.log")); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

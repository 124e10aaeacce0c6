package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sdr-waterfall/internal/config"
)

func TestNewWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.log")
	log, err := New(config.LoggingConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Debug("debug line")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "debug line") {
		t.Errorf("Expected debug line in log file, got %q", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

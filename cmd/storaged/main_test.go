package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunReturnsStartupErrors(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "storaged.log")

	err := run(options{configDir: dir, logFile: logPath, disableDB: true})
	if err == nil || !strings.Contains(err.Error(), "load catalogs") {
		t.Fatalf("expected catalog load error, got %v", err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("log file must have been opened: %v", err)
	}
}

func TestRunRejectsBrokenTuning(t *testing.T) {
	dir := t.TempDir()
	tp := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(tp, []byte("reclaim_radius: [oops\n"), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}

	err := run(options{configDir: dir, tuningPath: tp})
	if err == nil || !strings.Contains(err.Error(), "load tuning") {
		t.Fatalf("expected tuning error, got %v", err)
	}
}

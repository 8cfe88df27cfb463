package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	logger, closer, err := New(Options{Dir: dir, Level: LevelDebug, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("sync finished", "created", 2)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tasksync-2026-10-15.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "sync finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["created"] != float64(2) {
		t.Errorf("created = %v", entry["created"])
	}
}

func TestNewStderrWithoutDir(t *testing.T) {
	logger, closer, err := New(Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger == nil {
		t.Fatal("expected a logger")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC)

	files := []string{
		"tasksync-2026-10-01.log",
		"tasksync-2026-10-07.log",
		"tasksync-2026-10-08.log",
		"tasksync-2026-10-15.log",
		"tasksync-garbage.log",
		"other.log",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Prune(dir, 7, now)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	for _, f := range []string{"tasksync-2026-10-01.log", "tasksync-2026-10-07.log"} {
		if _, err := os.Stat(filepath.Join(dir, f)); !os.IsNotExist(err) {
			t.Errorf("%s should be gone", f)
		}
	}
	for _, f := range []string{"tasksync-2026-10-08.log", "tasksync-2026-10-15.log", "tasksync-garbage.log", "other.log"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("%s should be kept: %v", f, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if !strings.Contains(dir, ".searchgate") || filepath.Base(dir) != "logs" {
		t.Errorf("DefaultLogDir should end with .searchgate/logs, got: %s", dir)
	}
}

func TestDefaultLogPath(t *testing.T) {
	if base := filepath.Base(DefaultLogPath()); base != "server.log" {
		t.Errorf("DefaultLogPath should end with server.log, got: %s", base)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.FilePath != "" {
		t.Errorf("expected no log file by default, got: %s", cfg.FilePath)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("expected 10MB/5 files, got: %dMB/%d", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
	if cfg.FilePath != DefaultLogPath() {
		t.Errorf("expected default log path, got: %s", cfg.FilePath)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := LevelFromString(tt.input); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetup_StderrOnlyWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()

	logger, cleanup, err := setup(cfg, &buf)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanup()

	logger.Debug("hidden")
	logger.Info("batch_applied", slog.String("batch_id", "b1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "batch_applied" || record["batch_id"] != "b1" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestSetup_FileOnly(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "nested", "server.log")
	cfg := Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	logger, cleanup, err := setup(cfg, &stderr)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	logger.Debug("index_lock_retry", slog.Int("attempt", 2))
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"index_lock_retry"`) {
		t.Errorf("log file missing record: %s", data)
	}
	if stderr.Len() != 0 {
		t.Errorf("expected nothing on stderr, got: %s", stderr.String())
	}
}

func TestSetup_FileAndStderr(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "server.log")
	cfg := DefaultConfig()
	cfg.FilePath = path

	logger, cleanup, err := setup(cfg, &stderr)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	logger.Warn("stale_lock_removed")
	cleanup()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "stale_lock_removed") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(stderr.String(), "stale_lock_removed") {
		t.Errorf("stderr missing record: %s", stderr.String())
	}
}

func TestSetup_UnwritableFileFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(blocker, "server.log")

	if _, _, err := Setup(cfg); err == nil {
		t.Error("expected error when log directory cannot be created")
	}
}

func TestRotatingWriter_DefaultsForNonPositiveLimits(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 0, -1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	if w.maxSize != defaultMaxSizeMB*1024*1024 {
		t.Errorf("expected default max size, got %d", w.maxSize)
	}
	if w.maxFiles != defaultMaxFiles {
		t.Errorf("expected default max files, got %d", w.maxFiles)
	}
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if w.written != 4 {
		t.Errorf("expected written to start at existing size 4, got %d", w.written)
	}
	_, _ = w.Write([]byte("new\n"))
	_ = w.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	chunk := bytes.Repeat([]byte("a"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected %s.1 after rotation: %v", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("expected current file to hold one chunk, got %d bytes", info.Size())
	}
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	chunk := bytes.Repeat([]byte("b"), 700*1024)
	for i := 0; i < 6; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	matches, _ := filepath.Glob(path + ".*")
	if len(matches) > 2 {
		t.Errorf("expected at most 2 rotated files, got %v", matches)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected %s.3 to be removed", path)
	}
}

func TestRotatingWriter_IgnoresForeignSuffixes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	foreign := path + ".bak"
	if err := os.WriteFile(foreign, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingWriter(path, 1, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()
	chunk := bytes.Repeat([]byte("c"), 800*1024)
	_, _ = w.Write(chunk)
	_, _ = w.Write(chunk)

	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file should survive rotation: %v", err)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	w.SetImmediateSync(false)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "goroutine=%d line=%d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	_ = w.Close()

	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "\n"); got != 400 {
		t.Errorf("expected 400 lines, got %d", got)
	}
}

func TestRotatingWriter_CloseTwice(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected write after close to fail")
	}
}

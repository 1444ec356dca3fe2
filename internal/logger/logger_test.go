package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := New(Options{JSON: true, Debug: true, Output: path, Name: "serve"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Debug("asked opening question")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	line := string(data)
	for _, want := range []string{`"step":"asked opening question"`, `"level":"debug"`, `"logger":"serve"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestNewInfoLevelDropsDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	log, err := New(Options{Output: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Debug("hidden")
	log.Info("visible")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "visible") {
		t.Fatalf("unexpected log output: %s", data)
	}
}

func TestNewRejectsBadOutput(t *testing.T) {
	if _, err := New(Options{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}); err == nil {
		t.Fatal("expected error for unwritable output")
	}
}

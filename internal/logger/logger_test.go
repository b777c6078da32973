package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestNewWritesToFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	var console bytes.Buffer

	log, closer, err := NewWithWriter(Config{Format: "json", File: path}, &console)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("Server running", "port", 8001)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), `"port":8001`) {
		t.Fatalf("console output missing attribute: %s", console.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "Server running") {
		t.Fatalf("file output missing message: %s", b)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := NewWithWriter(Config{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestFileWriterDefaults(t *testing.T) {
	w := Config{File: "x.log"}.FileWriter()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected lumberjack writer, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
}

func TestColorHandlerKeepsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, nil, false)).With("component", "prober")
	log.Error("ping failed")
	out := buf.String()
	if !strings.Contains(out, "\033[31mERROR") {
		t.Fatalf("missing colored level: %q", out)
	}
	if !strings.Contains(out, "component=prober") {
		t.Fatalf("With attrs lost: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted: %q", out)
	}
}

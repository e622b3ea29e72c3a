package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerLiftsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	WithComponent(logger, "scanner").Info("cycle complete", Int("uploaded", 3))

	line := buf.String()
	if !strings.Contains(line, "INFO scanner: cycle complete") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "uploaded=3") {
		t.Fatalf("missing attribute in line: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be lifted into prefix: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("msg", String("path", "/tmp/with space/a.jpg"))

	if !strings.Contains(buf.String(), `path="/tmp/with space/a.jpg"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info line should be suppressed at warn level: %q", buf.String())
	}
	logger.Warn("visible")
	if !strings.Contains(buf.String(), "WARN visible") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl))

	logger.Info("hello", String("account", "rusty"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if record["msg"] != "hello" {
		t.Fatalf("msg field missing: %v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("level should be lowercase: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("ts field missing: %v", record)
	}
	if record["account"] != "rusty" {
		t.Fatalf("attribute missing: %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv("DEBUG", "")
	InitWriter(&buf, "info", "json")

	Component("pipeline").Info("run finished", "run_id", "abc")
	Logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["component"] != "pipeline" || entry["run_id"] != "abc" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestDebugEnvForcesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv("DEBUG", "true")
	InitWriter(&buf, "error", "text")

	Logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug line missing: %q", buf.String())
	}
}

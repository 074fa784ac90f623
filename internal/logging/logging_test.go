package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/logging"
)

func TestNew_JSONWithRFC3339Time(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := logging.New(logging.WithFormat(logging.FormatJSON), logging.WithOutput(&buf))

	logger.Info("code issued", "client_id", "test-client_123")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if entry["msg"] != "code issued" || entry["client_id"] != "test-client_123" {
		t.Errorf("entry = %v", entry)
	}

	ts, ok := entry["time"].(string)
	if !ok {
		t.Fatalf("time is %T, want string", entry["time"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := logging.New(logging.WithLevel(slog.LevelWarn), logging.WithOutput(&buf))

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info was logged: %s", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn was dropped: %s", buf.String())
	}
}

func TestFromStrings(t *testing.T) {
	t.Parallel()

	if _, err := logging.FromStrings("json", "debug", &bytes.Buffer{}); err != nil {
		t.Fatalf("FromStrings failed: %v", err)
	}
	if _, err := logging.FromStrings("xml", "info", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := logging.FromStrings("text", "verbose", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := logging.ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

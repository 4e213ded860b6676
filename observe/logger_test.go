package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("failed to parse log line as JSON: %v\nLine: %s", err, line)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLogger_WithProvider(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithProvider("openai")

	logger.Info(context.Background(), "call completed")

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0]["llm.provider"]; got != "openai" {
		t.Errorf("llm.provider = %v, want openai", got)
	}
	if got := entries[0]["msg"]; got != "call completed" {
		t.Errorf("msg = %v, want %q", got, "call completed")
	}
}

func TestLogger_WithProviderDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("info", &buf)
	_ = parent.WithProvider("anthropic")

	parent.Info(context.Background(), "plain")

	entries := decodeEntries(t, &buf)
	if _, ok := entries[0]["llm.provider"]; ok {
		t.Errorf("parent logger carries llm.provider = %v", entries[0]["llm.provider"])
	}
}

func TestLogger_CallIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	ctx := WithCallID(context.Background(), "call-123")
	logger.Debug(ctx, "attempt")
	logger.Debug(context.Background(), "no id")

	entries := decodeEntries(t, &buf)
	if got := entries[0]["call_id"]; got != "call-123" {
		t.Errorf("call_id = %v, want call-123", got)
	}
	if _, ok := entries[1]["call_id"]; ok {
		t.Errorf("call_id present without one in context: %v", entries[1]["call_id"])
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "call failed",
		Field{Key: "duration_ms", Value: 50.5},
		Field{Key: "error", Value: errors.New("connection reset")},
	)

	e := decodeEntries(t, &buf)[0]
	if got := e["level"]; got != "error" {
		t.Errorf("level = %v, want error", got)
	}
	if got := e["duration_ms"]; got != 50.5 {
		t.Errorf("duration_ms = %v, want 50.5", got)
	}
	if got := e["error"]; got != "connection reset" {
		t.Errorf("error = %v, want %q", got, "connection reset")
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestLogger_Redaction(t *testing.T) {
	for _, key := range RedactedFields {
		t.Run(key, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter("info", &buf)

			logger.Info(context.Background(), "request", Field{Key: key, Value: "sk-secret-value"})

			out := buf.String()
			if strings.Contains(out, "sk-secret-value") {
				t.Errorf("value of %q leaked: %s", key, out)
			}
			if got := decodeEntries(t, &buf)[0][key]; got != "[REDACTED]" {
				t.Errorf("%s = %v, want [REDACTED]", key, got)
			}
		})
	}
}

func TestLogger_NonSensitiveFieldsKept(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "request", Field{Key: "llm.model", Value: "gpt-4o"})

	if got := decodeEntries(t, &buf)[0]["llm.model"]; got != "gpt-4o" {
		t.Errorf("llm.model = %v, want gpt-4o", got)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"debug", []string{"debug", "info", "warn", "error"}},
		{"info", []string{"info", "warn", "error"}},
		{"warn", []string{"warn", "error"}},
		{"error", []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "m")
			logger.Info(ctx, "m")
			logger.Warn(ctx, "m")
			logger.Error(ctx, "m")

			entries := decodeEntries(t, &buf)
			if len(entries) != len(tt.want) {
				t.Fatalf("entries = %d, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e["level"] != tt.want[i] {
					t.Errorf("entry %d level = %v, want %s", i, e["level"], tt.want[i])
				}
			}
		})
	}
}

func TestLogger_ConcurrentDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	root := NewLoggerWithWriter("info", &buf)

	var wg sync.WaitGroup
	for _, name := range []string{"openai", "anthropic", "ollama"} {
		l := root.WithProvider(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Info(context.Background(), "tick")
			}
		}()
	}
	wg.Wait()

	// Interleaved writes would break line-level JSON decoding.
	if got := len(decodeEntries(t, &buf)); got != 150 {
		t.Errorf("entries = %d, want 150", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

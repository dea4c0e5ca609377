package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	ctx = WithRunID(ctx, "run-1")
	if got := GetRunID(ctx); got != "run-1" {
		t.Errorf("GetRunID() = %q, want %q", got, "run-1")
	}

	ctx = WithUser(ctx, "u1")
	if got := GetUser(ctx); got != "u1" {
		t.Errorf("GetUser() = %q, want %q", got, "u1")
	}

	ctx = WithFileID(ctx, "F100")
	if got := GetFileID(ctx); got != "F100" {
		t.Errorf("GetFileID() = %q, want %q", got, "F100")
	}

	ctx = WithRequestID(ctx, "req-9")
	if got := GetRequestID(ctx); got != "req-9" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-9")
	}

	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("GetRunID(empty) = %q, want empty", got)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
	}{
		{"defaults", Config{}, false},
		{"debug text", Config{Level: "DEBUG", Format: "text"}, false},
		{"warning alias", Config{Level: "warning"}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantError {
				t.Errorf("New() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log output is not JSON: %v (%s)", err, buf.String())
	}
	return m
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithFileID(WithRunID(context.Background(), "run-1"), "F100")
	logger.With("component", "retention.scheduler").InfoContext(ctx, "record processed", "action", "move")

	m := decode(t, &buf)
	want := map[string]string{
		"msg":       "record processed",
		"component": "retention.scheduler",
		"run_id":    "run-1",
		"file_id":   "F100",
		"action":    "move",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("field %s = %v, want %q", k, m[k], v)
		}
	}
	if _, ok := m["user"]; ok {
		t.Error("empty user field was logged")
	}
}

func TestLogger_TraceID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0xf7, 0x65, 0x19},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logger.InfoContext(ctx, "run started")

	m := decode(t, &buf)
	if m["trace_id"] != sc.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", m["trace_id"], sc.TraceID())
	}

	buf.Reset()
	logger.InfoContext(context.Background(), "run started")
	if _, ok := decode(t, &buf)["trace_id"]; ok {
		t.Error("trace_id logged without a span")
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("connecting", "dsn", "postgres://u:pw@db/saturn", "jwt_secret", "s3cr3t", "bucket", "files")

	out := buf.String()
	if strings.Contains(out, "pw@db") || strings.Contains(out, "s3cr3t") {
		t.Errorf("secret leaked into log output: %s", out)
	}
	if m := decode(t, &buf); m["bucket"] != "files" || m["dsn"] != Redacted {
		t.Errorf("fields = %v", m)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Error("warn not logged at warn level")
	}
}

func TestSetup_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if _, err := Setup(Config{Format: "text", Writer: &buf}); err != nil {
		t.Fatal(err)
	}

	slog.Default().With("component", "retention.executor").InfoContext(WithUser(context.Background(), "u1"), "hello")
	out := buf.String()
	if !strings.Contains(out, "component=retention.executor") || !strings.Contains(out, "user=u1") {
		t.Errorf("default logger output = %q", out)
	}
}

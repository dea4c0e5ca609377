package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/retention"
)

// useRecorder installs an in-memory provider for the duration of the test.
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()

	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return rec
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{"nil config", nil, true, false},
		{"disabled", &config.TracingConfig{ServiceName: "saturn"}, false, false},
		{
			name: "enabled ratio sampler",
			config: &config.TracingConfig{
				Enabled:     true,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				Timeout:     time.Second,
				Sampler:     SamplerRatio,
				SampleRatio: 0.5,
				ServiceName: "saturn",
			},
			wantEnabled: true,
		},
		{
			name: "unknown sampler",
			config: &config.TracingConfig{
				Enabled:  true,
				Endpoint: "localhost:4317",
				Sampler:  "sometimes",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := otel.GetTracerProvider()
			t.Cleanup(func() { otel.SetTracerProvider(prev) })

			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.wantEnabled)
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = tracer.Shutdown(ctx)
		})
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerRatio, -0.1, true},
		{SamplerRatio, 1.1, true},
		{"", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Error("createSampler() returned nil sampler")
			}
		})
	}
}

func TestStartEnd(t *testing.T) {
	rec := useRecorder(t)

	ctx, run := Start(context.Background(), "retention.run", RunAttributes("run-1", true))
	if TraceID(ctx) == "" {
		t.Error("TraceID() is empty inside a span")
	}

	_, child := Start(ctx, "retention.record", RecordAttributes(&retention.Record{ID: 7, FileID: "F1", PolicyID: 2}))
	SetActionResult(child, retention.ActionDelete, "failed")
	End(child, errors.New("permission denied"))

	SetRunTotals(run, 1, 0, 1)
	End(run, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if got := spans[0].Status().Code; got != codes.Error {
		t.Errorf("record span status = %v, want Error", got)
	}
	if got := spans[1].Status().Code; got != codes.Ok {
		t.Errorf("run span status = %v, want Ok", got)
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("record span is not a child of the run span")
	}

	found := false
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == AttrFileID && kv.Value.AsString() == "F1" {
			found = true
		}
	}
	if !found {
		t.Errorf("record span attributes = %v, want %s=F1", spans[0].Attributes(), AttrFileID)
	}
}

func TestTraceIDWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID() = %q, want empty", got)
	}
}

func TestPropagation(t *testing.T) {
	useRecorder(t)

	ctx, span := Start(context.Background(), "caller")
	defer span.End()

	headers := http.Header{}
	Inject(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("Inject() wrote no traceparent header")
	}

	extracted := Extract(context.Background(), headers)
	if got, want := TraceID(extracted), TraceID(ctx); got != want {
		t.Errorf("extracted trace ID = %q, want %q", got, want)
	}
}

package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps the global TracerProvider for one recording into
// memory. Tests using it must not run in parallel.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default slog logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	installTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "turn")
		cid := CorrelationID(ctx)
		span.End()
		if _, err := hex.DecodeString(cid); err != nil || len(cid) != 32 {
			t.Fatalf("correlation id %q is not a 32-char hex trace id", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation id %s", cid)
		}
		seen[cid] = true
	}
}

func TestSessionSpan(t *testing.T) {
	exp := installTracer(t)

	_, span := SessionSpan(context.Background(), "pipeline.process", "s-42")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "pipeline.process" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	want := attribute.String(SessionIDKey, "s-42")
	found := false
	for _, kv := range spans[0].Attributes {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes %v lack %v", spans[0].Attributes, want)
	}
}

func TestLoggers(t *testing.T) {
	installTracer(t)

	tests := []struct {
		name    string
		span    bool
		session string
		want    []string
		absent  []string
	}{
		{name: "no span", absent: []string{"trace_id", "span_id", "session_id"}},
		{name: "span", span: true, want: []string{"trace_id=", "span_id="}, absent: []string{"session_id"}},
		{name: "session", span: true, session: "abc", want: []string{"trace_id=", "session_id=abc"}},
		{name: "session without span", session: "abc", want: []string{"session_id=abc"}, absent: []string{"trace_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx := context.Background()
			if tt.span {
				c, s := StartSpan(ctx, "log")
				defer s.End()
				ctx = c
			}
			l := Logger(ctx)
			if tt.session != "" {
				l = SessionLogger(ctx, tt.session)
			}
			l.Info("crisis escalated")

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(out, a) {
					t.Errorf("log %q should not contain %q", out, a)
				}
			}
		})
	}
}

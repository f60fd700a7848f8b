package tracing_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"storyreel/internal/config"
	"storyreel/internal/tracing"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Tracing.Enabled = false
	shutdown, err := tracing.Setup(context.Background(), &cfg, "test", nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	cfg := config.Default()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "jaeger"
	if _, err := tracing.Setup(context.Background(), &cfg, "test", nil); err == nil {
		t.Fatal("expected unsupported exporter error")
	}
}

func TestSetupExportsSpans(t *testing.T) {
	cfg := config.Default()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	var buf bytes.Buffer
	shutdown, err := tracing.Setup(context.Background(), &cfg, "test", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := otel.Tracer("storyreel/test").Start(context.Background(), "taskpoll.Poll")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "taskpoll.Poll") {
		t.Fatalf("expected exported span, got %q", buf.String())
	}
}

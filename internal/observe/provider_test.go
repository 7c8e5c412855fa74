package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

func TestInitProvider_ServesEngineMetrics(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	exp := tracetest.NewInMemoryExporter()
	tel, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test", TraceExporter: exp})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	tel.Metrics.RecordToolCall(context.Background(), "format_time", "ok")
	_, span := StartSpan(context.Background(), "pipeline.run")
	span.End()

	rec := httptest.NewRecorder()
	tel.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"karaoke_tool_calls", `tool="format_time"`, "go_goroutines", `service_name="karaoke-maker"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "pipeline.run" {
		t.Errorf("exported spans = %v, want [pipeline.run]", spans)
	}
}

func TestInitProvider_SampleRatio(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	exp := tracetest.NewInMemoryExporter()
	tel, err := InitProvider(context.Background(), ProviderConfig{TraceExporter: exp, SampleRatio: 1e-9})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	for range 20 {
		_, span := StartSpan(context.Background(), "unlikely")
		span.End()
	}
	_ = tel.Shutdown(context.Background())
	if n := len(exp.GetSpans()); n > 1 {
		t.Errorf("exported %d spans at a near-zero ratio", n)
	}
}

func TestServiceResource_SchemaMatchesSDK(t *testing.T) {
	t.Parallel()
	if got := resource.Default().SchemaURL(); got != semconv.SchemaURL {
		t.Fatalf("sdk default resource schema = %q, semconv import = %q; merging them fails", got, semconv.SchemaURL)
	}
}

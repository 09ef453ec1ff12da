package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/onecollector/pkg/config"
	onehttp "github.com/hyp3rd/onecollector/pkg/instrumentation/http"
)

func TestInstrumentFactoryRecordsRequests(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "deflate" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	factory := onehttp.InstrumentFactory(func() *http.Client { return server.Client() }, tp, mp)

	client := factory()
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/OneCollector/1.0/?token=secret", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	req.Header.Set("Content-Encoding", config.CompressionDeflate.ContentEncoding())

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}

	err = resp.Body.Close()
	if err != nil {
		t.Fatalf("close body: %v", err)
	}

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name() != "POST onecollector" {
		t.Fatalf("unexpected span name %q", span.Name())
	}

	if span.SpanKind() != trace.SpanKindClient {
		t.Fatalf("expected client span, got %v", span.SpanKind())
	}

	for _, attr := range span.Attributes() {
		if attr.Key == "url.full" && strings.Contains(attr.Value.AsString(), "secret") {
			t.Fatalf("query string leaked into span: %s", attr.Value.AsString())
		}
	}

	var rm metricdata.ResourceMetrics

	err = reader.Collect(ctx, &rm)
	if err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	if !hasMetric(rm, "http.client.requests") || !hasMetric(rm, "http.client.duration.ms") {
		t.Fatalf("expected request metrics, got %+v", rm.ScopeMetrics)
	}
}

func TestInstrumentFactoryNil(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()

	if onehttp.InstrumentFactory(nil, tp, mp) != nil {
		t.Fatal("a nil factory must stay nil so validation rejects it")
	}

	factory := onehttp.InstrumentFactory(func() *http.Client { return nil }, tp, mp)
	if factory() != nil {
		t.Fatal("a nil client must be passed through")
	}
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return true
			}
		}
	}

	return false
}

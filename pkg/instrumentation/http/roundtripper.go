// Package http provides client-side instrumentation for the exporter's HTTP client.
package http

import (
	"net/http"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/onecollector/pkg/config"
)

const scopeName = "onecollector/http"

// RoundTripper instruments outgoing requests with a client span and RED metrics.
type RoundTripper struct {
	next     http.RoundTripper
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRoundTripper wraps next. A nil next uses http.DefaultTransport.
func NewRoundTripper(next http.RoundTripper, tp trace.TracerProvider, mp metric.MeterProvider) (*RoundTripper, error) {
	if next == nil {
		next = http.DefaultTransport
	}

	meter := mp.Meter(scopeName)

	reqCounter, err := meter.Int64Counter(
		"http.client.requests",
		metric.WithDescription("Number of payload requests sent to the ingestion endpoint"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create request counter")
	}

	latencyHist, err := meter.Float64Histogram(
		"http.client.duration.ms",
		metric.WithDescription("Latency of payload requests sent to the ingestion endpoint"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create latency histogram")
	}

	return &RoundTripper{
		next:     next,
		tracer:   tp.Tracer(scopeName),
		requests: reqCounter,
		duration: latencyHist,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(req.Method),
		semconv.ServerAddressKey.String(req.URL.Hostname()),
	}

	if encoding := req.Header.Get("Content-Encoding"); encoding != "" {
		attrs = append(attrs, attribute.String("http.request.content_encoding", encoding))
	}

	ctx, span := rt.tracer.Start(
		req.Context(),
		spanName(req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.URLFullKey.String(redactedURL(req))),
	)
	defer span.End()

	start := time.Now()

	resp, err := rt.next.RoundTrip(req.WithContext(ctx))

	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		attrs = append(attrs, attribute.String("error.type", "transport"))
	} else {
		attrs = append(attrs, semconv.HTTPResponseStatusCodeKey.Int(resp.StatusCode))
		if resp.StatusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	span.SetAttributes(attrs...)

	rt.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	rt.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		return nil, ewrap.Wrap(err, "round trip")
	}

	return resp, nil
}

// InstrumentFactory returns a ClientFactory whose clients route through a RoundTripper.
// The wrapped factory still runs once per call, so caching stays with the caller.
func InstrumentFactory(factory config.ClientFactory, tp trace.TracerProvider, mp metric.MeterProvider) config.ClientFactory {
	if factory == nil {
		return nil
	}

	return func() *http.Client {
		client := factory()
		if client == nil {
			return nil
		}

		rt, err := NewRoundTripper(client.Transport, tp, mp)
		if err != nil {
			return client
		}

		client.Transport = rt

		return client
	}
}

// CloseIdleConnections forwards to the wrapped transport so http.Client.CloseIdleConnections keeps working.
func (rt *RoundTripper) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}

	if closer, ok := rt.next.(closeIdler); ok {
		closer.CloseIdleConnections()
	}
}

func spanName(method string) string {
	return method + " onecollector"
}

func redactedURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}

	u := *req.URL
	u.User = nil
	u.RawQuery = ""

	return u.String()
}

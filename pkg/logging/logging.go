// Package logging carries exporter events to slog, zap or zerolog with trace
// correlation and transport-scoped attributes.
package logging

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/onecollector/pkg/config"
)

// Attribute keys shared by every component that logs about a transport.
const (
	KeyEndpoint    = attribute.Key("onecollector.endpoint")
	KeyProtocol    = attribute.Key("onecollector.protocol")
	KeyCompression = attribute.Key("onecollector.compression")
	KeyMaxPayload  = attribute.Key("onecollector.max_payload_size_bytes")
	KeyMaxItems    = attribute.Key("onecollector.max_items_per_payload")
	KeyField       = attribute.Key("onecollector.config.field")

	keyTraceID = attribute.Key("trace_id")
	keySpanID  = attribute.Key("span_id")
)

// Adapter describes the logging contract used by the exporter transport.
type Adapter interface {
	Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Info(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue)
	Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue)
}

// TransportAttrs describes cfg for log lines. Ceilings keep the -1 sentinel.
func TransportAttrs(cfg config.TransportConfig) []attribute.KeyValue {
	return []attribute.KeyValue{
		KeyEndpoint.String(cfg.EndpointString()),
		KeyProtocol.String(string(cfg.Protocol)),
		KeyCompression.String(string(cfg.HTTPCompression)),
		KeyMaxPayload.Int(cfg.MaxPayloadSizeBytes),
		KeyMaxItems.Int(cfg.MaxItemsPerPayload),
	}
}

// With returns an adapter that adds attrs ahead of the per-call attributes of every event.
func With(adapter Adapter, attrs ...attribute.KeyValue) Adapter {
	if adapter == nil {
		return NewNoopAdapter()
	}

	if len(attrs) == 0 {
		return adapter
	}

	if bound, ok := adapter.(boundAdapter); ok {
		return boundAdapter{inner: bound.inner, attrs: concat(bound.attrs, attrs)}
	}

	return boundAdapter{inner: adapter, attrs: concat(nil, attrs)}
}

type boundAdapter struct {
	inner Adapter
	attrs []attribute.KeyValue
}

func (b boundAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	b.inner.Debug(ctx, msg, concat(b.attrs, attrs)...)
}

func (b boundAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	b.inner.Info(ctx, msg, concat(b.attrs, attrs)...)
}

func (b boundAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	b.inner.Warn(ctx, msg, concat(b.attrs, attrs)...)
}

func (b boundAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	b.inner.Error(ctx, err, msg, concat(b.attrs, attrs)...)
}

// NewNoopAdapter returns a logger that drops every log event.
func NewNoopAdapter() Adapter {
	return noopAdapter{}
}

type noopAdapter struct{}

func (noopAdapter) Debug(context.Context, string, ...attribute.KeyValue)        {}
func (noopAdapter) Info(context.Context, string, ...attribute.KeyValue)         {}
func (noopAdapter) Warn(context.Context, string, ...attribute.KeyValue)         {}
func (noopAdapter) Error(context.Context, error, string, ...attribute.KeyValue) {}

// sink writes one event to a backend. err is nil except for LevelError.
type sink interface {
	write(ctx context.Context, level Level, msg string, err error, attrs []attribute.KeyValue)
}

// sinkAdapter turns a sink into an Adapter, applying the minimum level and the
// debug/info sample ratio before trace ids are attached.
type sinkAdapter struct {
	sink  sink
	min   Level
	ratio float64
}

func newSinkAdapter(s sink) *sinkAdapter {
	return &sinkAdapter{sink: s, min: LevelDebug, ratio: 1}
}

func (a *sinkAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	a.emit(ctx, LevelDebug, msg, nil, attrs)
}

func (a *sinkAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	a.emit(ctx, LevelInfo, msg, nil, attrs)
}

func (a *sinkAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	a.emit(ctx, LevelWarn, msg, nil, attrs)
}

func (a *sinkAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	a.emit(ctx, LevelError, msg, err, attrs)
}

func (a *sinkAdapter) emit(ctx context.Context, level Level, msg string, err error, attrs []attribute.KeyValue) {
	if level < a.min {
		return
	}

	// Warnings and errors are never sampled.
	if level < LevelWarn && !sampled(a.ratio) {
		return
	}

	a.sink.write(ctx, level, msg, err, concat(traceAttrs(ctx), attrs))
}

// traceAttrs returns the trace and span ids of the span in ctx, if any.
func traceAttrs(ctx context.Context) []attribute.KeyValue {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return nil
	}

	return []attribute.KeyValue{
		keyTraceID.String(spanCtx.TraceID().String()),
		keySpanID.String(spanCtx.SpanID().String()),
	}
}

func concat(head, tail []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(head)+len(tail))
	out = append(out, head...)

	return append(out, tail...)
}

// attrValue unwraps attr into a plain Go value the backends can encode.
func attrValue(attr attribute.KeyValue) any {
	//nolint:exhaustive // slices and INVALID go through AsInterface.
	switch attr.Value.Type() {
	case attribute.BOOL:
		return attr.Value.AsBool()
	case attribute.INT64:
		return attr.Value.AsInt64()
	case attribute.FLOAT64:
		return attr.Value.AsFloat64()
	case attribute.STRING:
		return attr.Value.AsString()
	default:
		return attr.Value.AsInterface()
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

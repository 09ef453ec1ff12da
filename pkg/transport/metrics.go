package transport

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hyp3rd/onecollector/pkg/config"
)

type buildInstruments struct {
	builds   metric.Int64Counter
	failures metric.Int64Counter
}

// newBuildInstruments falls back to no-op counters when the provider rejects them,
// so instrumentation never blocks a transport from being built.
func newBuildInstruments(mp metric.MeterProvider) buildInstruments {
	meter := mp.Meter(instrumentationName)
	fallback := noop.Meter{}

	builds, err := meter.Int64Counter(
		"onecollector.transport.builds",
		metric.WithDescription("Number of transports built from a valid configuration"),
	)
	if err != nil {
		builds, _ = fallback.Int64Counter("onecollector.transport.builds")
	}

	failures, err := meter.Int64Counter(
		"onecollector.transport.validation.failures",
		metric.WithDescription("Number of transport configurations rejected by validation"),
	)
	if err != nil {
		failures, _ = fallback.Int64Counter("onecollector.transport.validation.failures")
	}

	return buildInstruments{
		builds:   builds,
		failures: failures,
	}
}

func (b buildInstruments) recordBuild(ctx context.Context) {
	b.builds.Add(ctx, 1)
}

func (b buildInstruments) recordFailure(ctx context.Context, err error) {
	field := "unknown"
	if verr, ok := config.IsValidationError(err); ok {
		field = verr.Field
	}

	b.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("field", field)))
}

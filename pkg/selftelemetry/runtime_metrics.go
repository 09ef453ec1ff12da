package selftelemetry

import (
	"context"

	"github.com/hyp3rd/ewrap"
	runtimemetrics "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type runtimeMetricsController struct {
	registration metric.Registration
}

func (c *runtimeMetricsController) start(provider *sdkmetric.MeterProvider, bundle *exporterBundle) error {
	err := runtimemetrics.Start(
		runtimemetrics.WithMeterProvider(provider),
	)
	if err != nil {
		return ewrap.Wrap(err, "start runtime metrics")
	}

	meter := provider.Meter(scopeName)

	dropped, err := meter.Int64ObservableCounter(
		"onecollector.selftelemetry.dropped_spans",
		metric.WithDescription("Cumulative number of self telemetry spans dropped due to exporter failures"),
	)
	if err != nil {
		return ewrap.Wrap(err, "create dropped spans counter")
	}

	reg, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			if bundle == nil || bundle.traceStats == nil {
				return nil
			}

			observer.ObserveInt64(
				dropped,
				bundle.traceStats.dropped.Load(),
				metric.WithAttributes(attribute.String("signal", "traces")),
			)

			return nil
		},
		dropped,
	)
	if err != nil {
		return ewrap.Wrap(err, "register runtime metrics callback")
	}

	c.registration = reg

	return nil
}

func (c *runtimeMetricsController) shutdown() error {
	if c == nil || c.registration == nil {
		return nil
	}

	err := c.registration.Unregister()
	if err != nil {
		return ewrap.Wrap(err, "unregister runtime metrics")
	}

	return nil
}

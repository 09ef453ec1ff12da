// Package selftelemetry builds the tracer and meter providers the exporter uses to
// report on its own transport.
package selftelemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/diagnostics"
)

const scopeName = "onecollector/selftelemetry"

// Providers owns the SDK providers and their exporters.
type Providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	exporters      *exporterBundle
	runtimeMetrics *runtimeMetricsController

	once sync.Once
}

// New creates Providers from cfg. When self telemetry is disabled the providers
// are live but export nowhere.
func New(ctx context.Context, cfg config.SelfTelemetryConfig, svc config.ServiceConfig) (*Providers, error) {
	res, err := buildResource(ctx, svc)
	if err != nil {
		return nil, ewrap.Wrap(err, "build resource")
	}

	var exporters *exporterBundle

	if cfg.Enabled {
		exporters, err = newExporterBundle(ctx, cfg)
		if err != nil {
			return nil, ewrap.Wrap(err, "build exporters")
		}
	}

	p := &Providers{
		tracerProvider: buildTracerProvider(res, exporters),
		meterProvider:  buildMeterProvider(res, exporters),
		exporters:      exporters,
	}

	if cfg.Enabled && cfg.RuntimeMetrics {
		controller := &runtimeMetricsController{}

		err = controller.start(p.meterProvider, exporters)
		if err != nil {
			shutdownErr := p.Shutdown(ctx)

			return nil, ewrap.Wrap(errors.Join(err, shutdownErr), "start runtime metrics")
		}

		p.runtimeMetrics = controller
	}

	return p, nil
}

// TracerProvider exposes the tracer provider for instrumentation.
func (p *Providers) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider exposes the meter provider for instrumentation.
func (p *Providers) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// Enabled reports whether telemetry leaves the process.
func (p *Providers) Enabled() bool {
	return p.exporters != nil
}

// Status describes the span exporter for diagnostics.
func (p *Providers) Status() diagnostics.ExporterStatus {
	if p.exporters == nil || p.exporters.traceStats == nil {
		return diagnostics.ExporterStatus{}
	}

	return p.exporters.traceStats.status()
}

// Shutdown flushes and releases providers and exporters. Later calls are no-ops.
func (p *Providers) Shutdown(ctx context.Context) error {
	var shutdownErr error

	p.once.Do(func() {
		var errs []error

		if p.runtimeMetrics != nil {
			err := p.runtimeMetrics.shutdown()
			if err != nil {
				errs = append(errs, err)
			}
		}

		if p.tracerProvider != nil {
			err := p.tracerProvider.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if p.meterProvider != nil {
			err := p.meterProvider.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if len(errs) > 0 {
			shutdownErr = errors.Join(errs...)
		}
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown self telemetry")
	}

	return nil
}

func buildTracerProvider(res *resource.Resource, exporters *exporterBundle) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
	}

	if exporters != nil && exporters.traceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporters.traceExporter))
	}

	return sdktrace.NewTracerProvider(opts...)
}

func buildMeterProvider(res *resource.Resource, exporters *exporterBundle) *sdkmetric.MeterProvider {
	options := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	if exporters != nil && exporters.metricReader != nil {
		options = append(options, sdkmetric.WithReader(exporters.metricReader))
	}

	return sdkmetric.NewMeterProvider(options...)
}

func buildResource(ctx context.Context, svc config.ServiceConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(svc.Name),
		semconv.ServiceVersionKey.String(svc.Version),
		semconv.DeploymentEnvironmentKey.String(svc.Environment),
	}
	if svc.Namespace != "" {
		attrs = append(attrs, semconv.ServiceNamespaceKey.String(svc.Namespace))
	}

	for k, v := range svc.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	envRes, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, ewrap.Wrap(err, "create environment resource")
	}

	merged, err := resource.Merge(envRes, resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, ewrap.Wrap(err, "merge attribute resource")
	}

	return merged, nil
}

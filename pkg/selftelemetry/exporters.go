package selftelemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"

	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/diagnostics"
)

type exporterBundle struct {
	traceExporter sdktrace.SpanExporter
	metricReader  *sdkmetric.PeriodicReader
	traceStats    *exporterStats
}

type exporterStats struct {
	protocol  string
	endpoint  string
	dropped   atomic.Int64
	lastError atomic.Pointer[exporterError]
}

type exporterError struct {
	message string
	time    time.Time
}

func newExporterStats(cfg config.SelfTelemetryConfig) *exporterStats {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "grpc"
	}

	return &exporterStats{
		protocol: strings.ToLower(protocol),
		endpoint: cfg.Endpoint,
	}
}

func (s *exporterStats) recordFailure(n int64, err error) {
	if s == nil || err == nil {
		return
	}

	if n > 0 {
		s.dropped.Add(n)
	}

	s.lastError.Store(&exporterError{
		message: err.Error(),
		time:    time.Now().UTC(),
	})
}

func (s *exporterStats) status() diagnostics.ExporterStatus {
	status := diagnostics.ExporterStatus{
		Protocol: s.protocol,
		Endpoint: s.endpoint,
		Dropped:  s.dropped.Load(),
	}
	if last := s.lastError.Load(); last != nil {
		status.LastError = last.message
		status.LastErrorTime = last.time
	}

	return status
}

func newExporterBundle(ctx context.Context, cfg config.SelfTelemetryConfig) (*exporterBundle, error) {
	if cfg.Endpoint == "" {
		return nil, ewrap.New("self telemetry endpoint is required")
	}

	traceExp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stats := newExporterStats(cfg)

	metricExp, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, traceExp.Shutdown(ctx))
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = time.Minute
	}

	return &exporterBundle{
		traceExporter: &spanExporterWithStats{inner: traceExp, stats: stats},
		metricReader:  sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval)),
		traceStats:    stats,
	}, nil
}

func isHTTP(protocol string) bool {
	switch strings.ToLower(protocol) {
	case "http", "https":
		return true
	default:
		return false
	}
}

func newTraceExporter(ctx context.Context, cfg config.SelfTelemetryConfig) (sdktrace.SpanExporter, error) {
	if isHTTP(cfg.Protocol) {
		opts, err := buildOptions(cfg, optionFactory[otlptracehttp.Option]{
			withEndpoint: otlptracehttp.WithEndpoint,
			withInsecure: otlptracehttp.WithInsecure,
			withTLS:      otlptracehttp.WithTLSClientConfig,
			withTimeout:  otlptracehttp.WithTimeout,
			withHeaders:  otlptracehttp.WithHeaders,
			withCompression: func(value string) otlptracehttp.Option {
				if value == "gzip" {
					return otlptracehttp.WithCompression(otlptracehttp.GzipCompression)
				}

				return otlptracehttp.WithCompression(otlptracehttp.NoCompression)
			},
			withRetry: func(retry config.RetryConfig) otlptracehttp.Option {
				return otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
					Enabled:         true,
					InitialInterval: retry.InitialInterval,
					MaxInterval:     retry.MaxInterval,
					MaxElapsedTime:  retry.MaxElapsedTime,
				})
			},
		})
		if err != nil {
			return nil, err
		}

		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http trace exporter")
		}

		return exp, nil
	}

	opts, err := buildOptions(cfg, optionFactory[otlptracegrpc.Option]{
		withEndpoint: otlptracegrpc.WithEndpoint,
		withInsecure: otlptracegrpc.WithInsecure,
		withTLS: func(tlsCfg *tls.Config) otlptracegrpc.Option {
			return otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg))
		},
		withTimeout:     otlptracegrpc.WithTimeout,
		withHeaders:     otlptracegrpc.WithHeaders,
		withCompression: otlptracegrpc.WithCompressor,
		withRetry: func(retry config.RetryConfig) otlptracegrpc.Option {
			return otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: retry.InitialInterval,
				MaxInterval:     retry.MaxInterval,
				MaxElapsedTime:  retry.MaxElapsedTime,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, ewrap.Wrap(err, "create otlp grpc trace exporter")
	}

	return exp, nil
}

func newMetricExporter(ctx context.Context, cfg config.SelfTelemetryConfig) (sdkmetric.Exporter, error) {
	if isHTTP(cfg.Protocol) {
		opts, err := buildOptions(cfg, optionFactory[otlpmetrichttp.Option]{
			withEndpoint: otlpmetrichttp.WithEndpoint,
			withInsecure: otlpmetrichttp.WithInsecure,
			withTLS:      otlpmetrichttp.WithTLSClientConfig,
			withTimeout:  otlpmetrichttp.WithTimeout,
			withHeaders:  otlpmetrichttp.WithHeaders,
			withCompression: func(value string) otlpmetrichttp.Option {
				if value == "gzip" {
					return otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression)
				}

				return otlpmetrichttp.WithCompression(otlpmetrichttp.NoCompression)
			},
			withRetry: func(retry config.RetryConfig) otlpmetrichttp.Option {
				return otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
					Enabled:         true,
					InitialInterval: retry.InitialInterval,
					MaxInterval:     retry.MaxInterval,
					MaxElapsedTime:  retry.MaxElapsedTime,
				})
			},
		})
		if err != nil {
			return nil, err
		}

		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http metric exporter")
		}

		return exp, nil
	}

	opts, err := buildOptions(cfg, optionFactory[otlpmetricgrpc.Option]{
		withEndpoint: otlpmetricgrpc.WithEndpoint,
		withInsecure: otlpmetricgrpc.WithInsecure,
		withTLS: func(tlsCfg *tls.Config) otlpmetricgrpc.Option {
			return otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg))
		},
		withTimeout:     otlpmetricgrpc.WithTimeout,
		withHeaders:     otlpmetricgrpc.WithHeaders,
		withCompression: otlpmetricgrpc.WithCompressor,
		withRetry: func(retry config.RetryConfig) otlpmetricgrpc.Option {
			return otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: retry.InitialInterval,
				MaxInterval:     retry.MaxInterval,
				MaxElapsedTime:  retry.MaxElapsedTime,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, ewrap.Wrap(err, "create otlp grpc metric exporter")
	}

	return exp, nil
}

// optionFactory adapts the four OTLP exporter option sets to one builder.
type optionFactory[T any] struct {
	withEndpoint    func(string) T
	withInsecure    func() T
	withTLS         func(*tls.Config) T
	withTimeout     func(time.Duration) T
	withHeaders     func(map[string]string) T
	withCompression func(string) T
	withRetry       func(config.RetryConfig) T
}

func buildOptions[T any](cfg config.SelfTelemetryConfig, factory optionFactory[T]) ([]T, error) {
	opts := []T{factory.withEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, factory.withInsecure())
	} else {
		tlsCfg, err := config.TLSConfigFrom(cfg.TLS)
		if err != nil && !errors.Is(err, config.ErrTLSNotEnabled) {
			return nil, err
		}

		if tlsCfg != nil {
			opts = append(opts, factory.withTLS(tlsCfg))
		}
	}

	if cfg.Timeout > 0 {
		opts = append(opts, factory.withTimeout(cfg.Timeout))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, factory.withHeaders(cfg.Headers))
	}

	if cmp := strings.ToLower(cfg.Compression); cmp != "" {
		opts = append(opts, factory.withCompression(cmp))
	}

	if cfg.Retry.Enabled {
		opts = append(opts, factory.withRetry(cfg.Retry))
	}

	return opts, nil
}

type spanExporterWithStats struct {
	inner sdktrace.SpanExporter
	stats *exporterStats
}

func (s *spanExporterWithStats) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if s == nil || s.inner == nil {
		return nil
	}

	err := s.inner.ExportSpans(ctx, spans)
	if err != nil {
		s.stats.recordFailure(int64(len(spans)), err)

		return ewrap.Wrap(err, "export spans")
	}

	return nil
}

func (s *spanExporterWithStats) Shutdown(ctx context.Context) error {
	if s == nil || s.inner == nil {
		return nil
	}

	err := s.inner.Shutdown(ctx)
	if err != nil {
		return ewrap.Wrap(err, "shutdown span exporter")
	}

	return nil
}

package config

import (
	"time"

	"github.com/hyp3rd/onecollector/internal/constants"
)

const (
	defaultMaxElapsedTime = 5 * time.Minute
	defaultInterval       = 500 * time.Millisecond
	defaultMaxInterval    = 5 * time.Second
	defaultMetricInterval = time.Minute
)

// DefaultConfig returns a Config populated with production-safe defaults.
func DefaultConfig() Config {
	httpClient := DefaultHTTPClientConfig()

	return Config{
		Service: ServiceConfig{
			Name:        "onecollector-exporter",
			Namespace:   "default",
			Version:     "0.0.1",
			Environment: "development",
			Attributes:  map[string]string{},
		},
		Transport:  DefaultTransportConfig(),
		HTTPClient: httpClient,
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Adapter:     "slog",
			SampleRatio: 1.0,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:  false,
			HTTPAddr: "127.0.0.1:14272",
		},
		SelfTelemetry: SelfTelemetryConfig{
			Enabled:     false,
			Protocol:    "grpc",
			Endpoint:    "localhost:4317",
			Insecure:    true,
			Timeout:     2 * constants.DefaultTimeout,
			Compression: "gzip",
			Retry: RetryConfig{
				Enabled:         true,
				MaxElapsedTime:  defaultMaxElapsedTime,
				InitialInterval: defaultInterval,
				MaxInterval:     defaultMaxInterval,
			},
			MetricInterval: defaultMetricInterval,
			RuntimeMetrics: false,
		},
		Instrumentation: InstrumentationConfig{
			HTTPClient: HTTPInstrumentationConfig{
				Enabled: true,
			},
		},
	}
}

// DefaultHTTPClientConfig returns the pool and timeout settings of the default client.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             constants.DefaultClientTimeout,
		MaxIdleConns:        constants.DefaultMaxIdleConns,
		MaxIdleConnsPerHost: constants.DefaultMaxIdleConns,
		IdleConnTimeout:     constants.DefaultIdleConnTimeout,
	}
}

// Package config defines the transport configuration of the OneCollector exporter
// together with the ambient settings used to run it.
package config

import (
	"time"
)

// Config is the canonical configuration consumed by the onecollector client.
type Config struct {
	Service         ServiceConfig         `yaml:"service"         json:"service"`
	Transport       TransportConfig       `yaml:"transport"       json:"transport"`
	HTTPClient      HTTPClientConfig      `yaml:"http_client"     json:"http_client"`
	Logging         LoggingConfig         `yaml:"logging"         json:"logging"`
	Diagnostics     DiagnosticsConfig     `yaml:"diagnostics"     json:"diagnostics"`
	SelfTelemetry   SelfTelemetryConfig   `yaml:"self_telemetry"  json:"self_telemetry"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation" json:"instrumentation"`
}

// ServiceConfig captures metadata attached to self telemetry and diagnostics.
type ServiceConfig struct {
	Name        string            `yaml:"name"        json:"name"`
	Namespace   string            `yaml:"namespace"   json:"namespace"`
	Version     string            `yaml:"version"     json:"version"`
	Environment string            `yaml:"environment" json:"environment"`
	Attributes  map[string]string `yaml:"attributes"  json:"attributes"`
}

// HTTPClientConfig tunes the client built by the default ClientFactory.
type HTTPClientConfig struct {
	Timeout              time.Duration `yaml:"timeout"                 json:"timeout"`
	MaxIdleConns         int           `yaml:"max_idle_conns"          json:"max_idle_conns"`
	MaxIdleConnsPerHost  int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	MaxConnsPerHost      int           `yaml:"max_conns_per_host"      json:"max_conns_per_host"`
	IdleConnTimeout      time.Duration `yaml:"idle_conn_timeout"       json:"idle_conn_timeout"`
	DisableKeepAlives    bool          `yaml:"disable_keep_alives"     json:"disable_keep_alives"`
	HTTP2ReadIdleTimeout time.Duration `yaml:"http2_read_idle_timeout" json:"http2_read_idle_timeout"`
	HTTP2PingTimeout     time.Duration `yaml:"http2_ping_timeout"      json:"http2_ping_timeout"`
	TLS                  TLSConfig     `yaml:"tls"                     json:"tls"`
}

// TLSConfig encapsulates TLS dial settings.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"   json:"ca_file"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file"  json:"key_file"`
	Insecure bool   `yaml:"insecure"  json:"insecure"`
}

// RetryConfig specifies retry settings for self telemetry exporters.
type RetryConfig struct {
	Enabled         bool          `yaml:"enabled"          json:"enabled"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" json:"max_elapsed_time"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"     json:"max_interval"`
}

// SelfTelemetryConfig controls where the exporter ships its own traces and metrics.
type SelfTelemetryConfig struct {
	Enabled        bool              `yaml:"enabled"         json:"enabled"`
	Protocol       string            `yaml:"protocol"        json:"protocol"`
	Endpoint       string            `yaml:"endpoint"        json:"endpoint"`
	Insecure       bool              `yaml:"insecure"        json:"insecure"`
	Headers        map[string]string `yaml:"headers"         json:"headers"`
	Timeout        time.Duration     `yaml:"timeout"         json:"timeout"`
	Compression    string            `yaml:"compression"     json:"compression"`
	Retry          RetryConfig       `yaml:"retry"           json:"retry"`
	TLS            TLSConfig         `yaml:"tls"             json:"tls"`
	MetricInterval time.Duration     `yaml:"metric_interval" json:"metric_interval"`
	RuntimeMetrics bool              `yaml:"runtime_metrics" json:"runtime_metrics"`
}

// InstrumentationConfig toggles client-side instrumentation of the transport.
type InstrumentationConfig struct {
	HTTPClient HTTPInstrumentationConfig `yaml:"http_client" json:"http_client"`
}

// HTTPInstrumentationConfig configures the instrumented round tripper.
type HTTPInstrumentationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// LoggingConfig controls structured log behavior.
type LoggingConfig struct {
	Level       string  `yaml:"level"        json:"level"`
	Format      string  `yaml:"format"       json:"format"`
	Adapter     string  `yaml:"adapter"      json:"adapter"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// DiagnosticsConfig toggles the status endpoint.
type DiagnosticsConfig struct {
	Enabled   bool   `yaml:"enabled"    json:"enabled"`
	HTTPAddr  string `yaml:"http_addr"  json:"http_addr"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}

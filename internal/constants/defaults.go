// Package constants provides common constants used across the onecollector project.
package constants

import "time"

const (
	// DefaultTimeout is the default timeout for requests.
	DefaultTimeout = 5 * time.Second
	// DefaultShutdownTimeout is the default timeout for shutdown operations.
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultClientTimeout bounds a single request issued by the default HTTP client.
	DefaultClientTimeout = 10 * time.Second
	// DefaultIdleConnTimeout is how long pooled connections stay open while unused.
	DefaultIdleConnTimeout = 90 * time.Second
	// DefaultMaxIdleConns is the idle pool size of the default HTTP client.
	DefaultMaxIdleConns = 100
	// DefaultDialTimeout bounds TCP connection establishment.
	DefaultDialTimeout = 30 * time.Second
	// DefaultTLSHandshakeTimeout bounds the TLS handshake.
	DefaultTLSHandshakeTimeout = 10 * time.Second
	// DefaultConfigFile is the YAML file read by the default file loader.
	DefaultConfigFile = "onecollector.yaml"
	// DefaultEnvPrefix prefixes environment variable overrides.
	DefaultEnvPrefix = "ONECOLLECTOR_"
)

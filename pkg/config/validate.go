package config

import "net"

// Validate enforces the transport invariants and reports the first violation.
// It performs no I/O and leaves the receiver untouched, so repeated calls are safe.
func (c TransportConfig) Validate() error {
	if c.Endpoint == nil {
		return newValidationError(transportConfigTypeName, "Endpoint", "is required")
	}

	if !c.Endpoint.IsAbs() || c.Endpoint.Host == "" {
		return newValidationError(transportConfigTypeName, "Endpoint",
			"must be an absolute URI with scheme and host, got %q", c.Endpoint.String())
	}

	if c.ClientFactory == nil {
		return newValidationError(transportConfigTypeName, "ClientFactory", "is required")
	}

	if !validCeiling(c.MaxPayloadSizeBytes) {
		return newValidationError(transportConfigTypeName, "MaxPayloadSizeBytes",
			"must be greater than zero or %d (unlimited), got %d", Unlimited, c.MaxPayloadSizeBytes)
	}

	if !validCeiling(c.MaxItemsPerPayload) {
		return newValidationError(transportConfigTypeName, "MaxItemsPerPayload",
			"must be greater than zero or %d (unlimited), got %d", Unlimited, c.MaxItemsPerPayload)
	}

	if !c.Protocol.known() {
		return newValidationError(transportConfigTypeName, "Protocol", "unsupported value %q", c.Protocol)
	}

	if !c.HTTPCompression.known() {
		return newValidationError(transportConfigTypeName, "HTTPCompression", "unsupported value %q", c.HTTPCompression)
	}

	return nil
}

func validCeiling(limit int) bool {
	return limit > 0 || limit == Unlimited
}

// Validate asserts that the full config meets baseline expectations.
// Transport settings are checked first since they gate exporter construction.
func Validate(cfg Config) error {
	err := cfg.Transport.Validate()
	if err != nil {
		return err
	}

	if cfg.Service.Name == "" {
		return newValidationError("", "service.name", "is required")
	}

	if cfg.HTTPClient.Timeout < 0 {
		return newValidationError("", "http_client.timeout", "must not be negative, got %s", cfg.HTTPClient.Timeout)
	}

	if cfg.Diagnostics.Enabled {
		_, _, err := net.SplitHostPort(cfg.Diagnostics.HTTPAddr)
		if err != nil {
			return newValidationError("", "diagnostics.http_addr", "must be host:port, got %q", cfg.Diagnostics.HTTPAddr)
		}
	}

	if cfg.SelfTelemetry.Enabled {
		if cfg.SelfTelemetry.Endpoint == "" {
			return newValidationError("", "self_telemetry.endpoint", "is required when self telemetry is enabled")
		}

		switch cfg.SelfTelemetry.Protocol {
		case "grpc", "http", "https":
		default:
			return newValidationError("", "self_telemetry.protocol", "unsupported value %q", cfg.SelfTelemetry.Protocol)
		}
	}

	return nil
}

package config_test

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/hyp3rd/onecollector/pkg/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultTransportConfigValidates(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTransportConfig()

	err := cfg.Validate()
	if err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	if got := cfg.EndpointString(); got != "https://mobile.events.data.microsoft.com/OneCollector/1.0/" {
		t.Fatalf("unexpected default endpoint %q", got)
	}

	if cfg.MaxPayloadSizeBytes != 4194304 {
		t.Fatalf("expected default payload ceiling 4194304, got %d", cfg.MaxPayloadSizeBytes)
	}

	if cfg.MaxItemsPerPayload != 1500 {
		t.Fatalf("expected default item ceiling 1500, got %d", cfg.MaxItemsPerPayload)
	}

	if cfg.HTTPCompression != config.CompressionDeflate {
		t.Fatalf("expected deflate compression, got %q", cfg.HTTPCompression)
	}

	if cfg.Protocol != config.ProtocolHTTPJSONPost {
		t.Fatalf("expected http_json_post protocol, got %q", cfg.Protocol)
	}

	if cfg.ClientFactory == nil {
		t.Fatal("expected a default client factory")
	}
}

func TestValidateCeilings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value int
		valid bool
	}{
		{value: config.Unlimited, valid: true},
		{value: 1, valid: true},
		{value: 1500, valid: true},
		{value: 1 << 30, valid: true},
		{value: 0, valid: false},
		{value: -2, valid: false},
		{value: -1500, valid: false},
	}

	for _, tc := range tests {
		payload := config.DefaultTransportConfig()
		payload.MaxPayloadSizeBytes = tc.value

		items := config.DefaultTransportConfig()
		items.MaxItemsPerPayload = tc.value

		assertCeiling(t, payload.Validate(), tc.valid, "MaxPayloadSizeBytes", tc.value)
		assertCeiling(t, items.Validate(), tc.valid, "MaxItemsPerPayload", tc.value)
	}
}

func assertCeiling(t *testing.T, err error, valid bool, field string, value int) {
	t.Helper()

	if valid {
		if err != nil {
			t.Fatalf("%s=%d should validate, got %v", field, value, err)
		}

		return
	}

	assertFieldError(t, err, field)
}

func TestValidateUnlimitedPayloadSize(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTransportConfig()
	cfg.MaxPayloadSizeBytes = config.Unlimited

	err := cfg.Validate()
	if err != nil {
		t.Fatalf("unlimited payload size should be accepted, got %v", err)
	}

	if !cfg.PayloadSizeUnlimited() {
		t.Fatal("expected payload size to report unlimited")
	}

	if cfg.ItemsUnlimited() {
		t.Fatal("item ceiling should still be bounded")
	}
}

func TestValidateZeroItemsPerPayload(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTransportConfig()
	cfg.MaxItemsPerPayload = 0

	assertFieldError(t, cfg.Validate(), "MaxItemsPerPayload")
}

func TestValidateNilClientFactory(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTransportConfig()
	cfg.ClientFactory = nil
	cfg.MaxPayloadSizeBytes = 0
	cfg.MaxItemsPerPayload = -7

	// the factory is checked before both ceilings
	assertFieldError(t, cfg.Validate(), "ClientFactory")
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTransportConfig()
	cfg.Endpoint = nil
	cfg.ClientFactory = nil

	assertFieldError(t, cfg.Validate(), "Endpoint")

	for _, raw := range []string{"/relative/path", "collector:443", ""} {
		parsed, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}

		cfg := config.DefaultTransportConfig()
		cfg.Endpoint = parsed

		assertFieldError(t, cfg.Validate(), "Endpoint")
	}

	parsed, err := url.Parse("http://localhost:8080/OneCollector/1.0/")
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}

	cfg = config.DefaultTransportConfig()
	cfg.Endpoint = parsed

	err = cfg.Validate()
	if err != nil {
		t.Fatalf("absolute endpoint should validate, got %v", err)
	}
}

func TestValidateEnums(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultTransportConfig()
	cfg.Protocol = "grpc"

	assertFieldError(t, cfg.Validate(), "Protocol")

	cfg = config.DefaultTransportConfig()
	cfg.HTTPCompression = "gzip"

	assertFieldError(t, cfg.Validate(), "HTTPCompression")

	cfg = config.DefaultTransportConfig()
	cfg.HTTPCompression = config.CompressionNone

	err := cfg.Validate()
	if err != nil {
		t.Fatalf("compression none should validate, got %v", err)
	}
}

func TestValidateAcceptsZeroValueEnums(t *testing.T) {
	t.Parallel()

	cfg := config.TransportConfig{
		Endpoint:            config.DefaultTransportConfig().Endpoint,
		MaxPayloadSizeBytes: config.DefaultMaxPayloadSizeBytes,
		MaxItemsPerPayload:  config.DefaultMaxItemsPerPayload,
		ClientFactory:       func() *http.Client { return &http.Client{} },
	}

	err := cfg.Validate()
	if err != nil {
		t.Fatalf("unset protocol and compression should validate, got %v", err)
	}

	if cfg.HTTPCompression.ContentEncoding() != "" {
		t.Fatalf("unset compression must send no encoding, got %q", cfg.HTTPCompression.ContentEncoding())
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := config.DefaultTransportConfig()
	cfg.ClientFactory = func() *http.Client {
		calls++

		return &http.Client{}
	}

	before := cfg.EndpointString()

	for range 3 {
		err := cfg.Validate()
		if err != nil {
			t.Fatalf("validate returned error: %v", err)
		}
	}

	if calls != 0 {
		t.Fatalf("validate must not invoke the client factory, got %d calls", calls)
	}

	if cfg.EndpointString() != before {
		t.Fatal("validate must not mutate the endpoint")
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	tests := map[string]config.Compression{
		"":         config.CompressionNone,
		"none":     config.CompressionNone,
		" Deflate": config.CompressionDeflate,
		"DEFLATE":  config.CompressionDeflate,
	}

	for raw, want := range tests {
		got, err := config.ParseCompression(raw)
		if err != nil {
			t.Fatalf("ParseCompression(%q) returned error: %v", raw, err)
		}

		if got != want {
			t.Fatalf("ParseCompression(%q) = %q, want %q", raw, got, want)
		}
	}

	_, err := config.ParseCompression("brotli")
	if err == nil {
		t.Fatal("expected error for unsupported compression")
	}

	if config.CompressionDeflate.ContentEncoding() != "deflate" {
		t.Fatal("expected deflate content encoding")
	}

	if config.CompressionNone.ContentEncoding() != "" {
		t.Fatal("expected no content encoding for none")
	}
}

func TestDefaultClientFactoryBuildsFreshClients(t *testing.T) {
	t.Parallel()

	factory, err := config.NewClientFactory(config.DefaultHTTPClientConfig())
	if err != nil {
		t.Fatalf("NewClientFactory returned error: %v", err)
	}

	first := factory()
	second := factory()

	if first == nil || second == nil {
		t.Fatal("factory returned nil client")
	}

	if first == second {
		t.Fatal("each factory call should build a new client")
	}

	if first.Timeout != config.DefaultHTTPClientConfig().Timeout {
		t.Fatalf("unexpected client timeout %s", first.Timeout)
	}

	first.CloseIdleConnections()
	second.CloseIdleConnections()
}

func TestNewClientFactoryRejectsHalfKeyPair(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultHTTPClientConfig()
	cfg.TLS.CertFile = "client.pem"

	_, err := config.NewClientFactory(cfg)
	if err == nil || !strings.Contains(err.Error(), "cert_file and key_file") {
		t.Fatalf("expected key pair error, got %v", err)
	}
}

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected validation error for %s, got nil", field)
	}

	if !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}

	verr, ok := config.IsValidationError(err)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}

	if verr.Field != field {
		t.Fatalf("expected failing field %s, got %s (%v)", field, verr.Field, err)
	}

	if verr.Type != "TransportConfig" {
		t.Fatalf("expected type TransportConfig, got %s", verr.Type)
	}

	if !strings.Contains(err.Error(), "TransportConfig."+field) {
		t.Fatalf("error message should name TransportConfig.%s, got %q", field, err.Error())
	}
}

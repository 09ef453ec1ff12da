package config

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hyp3rd/ewrap"
)

const (
	// Unlimited disables a payload ceiling when assigned to MaxPayloadSizeBytes or MaxItemsPerPayload.
	Unlimited = -1

	// DefaultEndpoint is the OneCollector ingestion URL used when none is configured.
	DefaultEndpoint = "https://mobile.events.data.microsoft.com/OneCollector/1.0/"
	// DefaultMaxPayloadSizeBytes is 4 MiB.
	DefaultMaxPayloadSizeBytes = 4 * 1024 * 1024
	// DefaultMaxItemsPerPayload caps the number of telemetry items in one request.
	DefaultMaxItemsPerPayload = 1500

	transportConfigTypeName = "TransportConfig"
)

// Protocol identifies the wire protocol spoken with the ingestion endpoint.
type Protocol string

const (
	// ProtocolHTTPJSONPost posts JSON payloads over HTTP. It is the only protocol supported today.
	ProtocolHTTPJSONPost Protocol = "http_json_post"
)

// known accepts the zero value as ProtocolHTTPJSONPost, matching ParseProtocol.
func (p Protocol) known() bool {
	return p == "" || p == ProtocolHTTPJSONPost
}

// ParseProtocol resolves a protocol name, ignoring case and surrounding whitespace.
func ParseProtocol(value string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ProtocolHTTPJSONPost), "httpjsonpost":
		return ProtocolHTTPJSONPost, nil
	default:
		return "", ewrap.Newf("unsupported transport protocol %q", value)
	}
}

// Compression selects the HTTP body compression applied to outgoing payloads.
type Compression string

const (
	// CompressionNone sends payloads uncompressed.
	CompressionNone Compression = "none"
	// CompressionDeflate compresses payloads with deflate.
	CompressionDeflate Compression = "deflate"
)

// ParseCompression resolves a compression name, ignoring case and surrounding whitespace.
// An empty value maps to CompressionNone.
func ParseCompression(value string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(CompressionNone):
		return CompressionNone, nil
	case string(CompressionDeflate):
		return CompressionDeflate, nil
	default:
		return "", ewrap.Newf("unsupported http compression %q", value)
	}
}

// ContentEncoding returns the Content-Encoding header value for the compression mode.
func (c Compression) ContentEncoding() string {
	if c == CompressionDeflate {
		return "deflate"
	}

	return ""
}

// known accepts the zero value as CompressionNone, matching ParseCompression.
func (c Compression) known() bool {
	return c == "" || c == CompressionNone || c == CompressionDeflate
}

// ClientFactory constructs the HTTP client shared by every export call.
// The exporter invokes it at most once and owns the returned client.
type ClientFactory func() *http.Client

// TransportConfig declares how an exporter sends payloads to the ingestion endpoint.
//
// Fields are not checked on assignment. Callers build the value, then call Validate
// once before handing it to an exporter, and must not mutate it afterwards.
type TransportConfig struct {
	Endpoint            *url.URL      `yaml:"endpoint"               json:"endpoint"`
	Protocol            Protocol      `yaml:"protocol"               json:"protocol"`
	MaxPayloadSizeBytes int           `yaml:"max_payload_size_bytes" json:"max_payload_size_bytes"`
	MaxItemsPerPayload  int           `yaml:"max_items_per_payload"  json:"max_items_per_payload"`
	HTTPCompression     Compression   `yaml:"http_compression"       json:"http_compression"`
	ClientFactory       ClientFactory `yaml:"-"                      json:"-"`
}

// DefaultTransportConfig returns the transport settings used when nothing is overridden.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Endpoint:            mustParseURL(DefaultEndpoint),
		Protocol:            ProtocolHTTPJSONPost,
		MaxPayloadSizeBytes: DefaultMaxPayloadSizeBytes,
		MaxItemsPerPayload:  DefaultMaxItemsPerPayload,
		HTTPCompression:     CompressionDeflate,
		ClientFactory:       defaultClientFactory(),
	}
}

// IsUnlimited reports whether a ceiling holds the Unlimited sentinel.
func IsUnlimited(limit int) bool {
	return limit == Unlimited
}

// PayloadSizeUnlimited reports whether payload size is unbounded.
func (c TransportConfig) PayloadSizeUnlimited() bool {
	return IsUnlimited(c.MaxPayloadSizeBytes)
}

// ItemsUnlimited reports whether the item count per payload is unbounded.
func (c TransportConfig) ItemsUnlimited() bool {
	return IsUnlimited(c.MaxItemsPerPayload)
}

// EndpointString renders the endpoint, or "" when unset.
func (c TransportConfig) EndpointString() string {
	if c.Endpoint == nil {
		return ""
	}

	return c.Endpoint.String()
}

func mustParseURL(raw string) *url.URL {
	parsed, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}

	return parsed
}

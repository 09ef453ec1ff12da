// Package transport turns a validated TransportConfig into the handle an exporter
// uses on its hot path: read-only settings plus one shared HTTP client.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/logging"
)

const instrumentationName = "onecollector/transport"

// ErrNilClient is returned when the client factory produced no client.
var ErrNilClient = ewrap.New("client factory returned a nil http client")

// ErrClosed is returned by Client after Close.
var ErrClosed = ewrap.New("transport is closed")

// Transport holds a validated configuration and lazily builds the shared client.
// All methods are safe for concurrent use.
type Transport struct {
	cfg         config.TransportConfig
	logger      logging.Adapter
	validatedAt time.Time

	clientOnce sync.Once
	client     atomic.Pointer[http.Client]
	clientErr  error
	factoryRun atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Stats summarizes the lifecycle of a Transport.
type Stats struct {
	ValidatedAt         time.Time `json:"validated_at"`
	ClientConstructed   bool      `json:"client_constructed"`
	FactoryInvocations  int64     `json:"factory_invocations"`
	Closed              bool      `json:"closed"`
	MaxPayloadSizeBytes int       `json:"max_payload_size_bytes"`
	MaxItemsPerPayload  int       `json:"max_items_per_payload"`
}

// New validates cfg and returns a Transport bound to it.
// A validation failure is returned as is, wrapped with context; callers must abort.
func New(ctx context.Context, cfg config.TransportConfig, opts ...Option) (*Transport, error) {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	tracer := settings.tracerProvider.Tracer(instrumentationName)
	instruments := newBuildInstruments(settings.meterProvider)
	logger := logging.With(settings.logger, logging.TransportAttrs(cfg)...)

	ctx, span := tracer.Start(ctx, "transport.build", trace.WithAttributes(
		logging.KeyEndpoint.String(cfg.EndpointString()),
		logging.KeyCompression.String(string(cfg.HTTPCompression)),
	))
	defer span.End()

	err := cfg.Validate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid transport configuration")
		instruments.recordFailure(ctx, err)
		logger.Error(ctx, err, "transport configuration rejected")

		return nil, ewrap.Wrap(err, "validate transport config")
	}

	instruments.recordBuild(ctx)

	if cfg.PayloadSizeUnlimited() {
		logger.Warn(ctx, "payload size ceiling disabled", logging.KeyField.String("MaxPayloadSizeBytes"))
	}

	logger.Info(ctx, "transport configured")

	span.SetStatus(codes.Ok, "")

	cfg.Endpoint = cloneURL(cfg.Endpoint)

	return &Transport{
		cfg:         cfg,
		logger:      logger,
		validatedAt: time.Now().UTC(),
	}, nil
}

// Config returns a copy of the validated configuration. Its Endpoint is a fresh URL.
func (t *Transport) Config() config.TransportConfig {
	cfg := t.cfg
	cfg.Endpoint = cloneURL(cfg.Endpoint)

	return cfg
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}

	clone := *u
	if u.User != nil {
		user := *u.User
		clone.User = &user
	}

	return &clone
}

// Client returns the shared HTTP client, invoking the factory on first use only.
// A failed construction is remembered and returned on every later call.
func (t *Transport) Client() (*http.Client, error) {
	// Close takes the write lock, so no client is built once Close has started.
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrClosed
	}

	t.clientOnce.Do(func() {
		t.factoryRun.Add(1)

		client := t.cfg.ClientFactory()
		if client == nil {
			t.clientErr = ErrNilClient
			t.logger.Error(context.Background(), t.clientErr, "http client construction failed")

			return
		}

		t.client.Store(client)
		t.logger.Debug(context.Background(), "http client constructed")
	})

	if t.clientErr != nil {
		return nil, t.clientErr
	}

	return t.client.Load(), nil
}

// Accepts reports whether a payload of the given size and item count fits both ceilings.
func (t *Transport) Accepts(payloadBytes, items int) bool {
	if !t.cfg.PayloadSizeUnlimited() && payloadBytes > t.cfg.MaxPayloadSizeBytes {
		return false
	}

	if !t.cfg.ItemsUnlimited() && items > t.cfg.MaxItemsPerPayload {
		return false
	}

	return true
}

// ContentEncoding returns the Content-Encoding header to send, or "".
func (t *Transport) ContentEncoding() string {
	return t.cfg.HTTPCompression.ContentEncoding()
}

// Close releases idle connections held by the shared client. It is idempotent and
// does not construct a client that was never requested.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true

	if client := t.client.Load(); client != nil {
		client.CloseIdleConnections()
	}

	return nil
}

// Stats reports lifecycle counters for diagnostics.
func (t *Transport) Stats() Stats {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()

	return Stats{
		ValidatedAt:         t.validatedAt,
		ClientConstructed:   t.client.Load() != nil,
		FactoryInvocations:  t.factoryRun.Load(),
		Closed:              closed,
		MaxPayloadSizeBytes: t.cfg.MaxPayloadSizeBytes,
		MaxItemsPerPayload:  t.cfg.MaxItemsPerPayload,
	}
}

// Option customizes a Transport.
type Option func(*options)

type options struct {
	logger         logging.Adapter
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

func defaultOptions() options {
	return options{
		logger:         logging.NewNoopAdapter(),
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  noop.NewMeterProvider(),
	}
}

// WithLogger sets the adapter used for build events.
func WithLogger(adapter logging.Adapter) Option {
	return func(opt *options) {
		if adapter != nil {
			opt.logger = adapter
		}
	}
}

// WithTracerProvider records the build span on tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opt *options) {
		if tp != nil {
			opt.tracerProvider = tp
		}
	}
}

// WithMeterProvider records build counters on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(opt *options) {
		if mp != nil {
			opt.meterProvider = mp
		}
	}
}

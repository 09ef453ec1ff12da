// Package onecollector wires configuration, logging, self telemetry and diagnostics
// around the exporter transport.
package onecollector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/onecollector/internal/constants"
	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/diagnostics"
	onehttp "github.com/hyp3rd/onecollector/pkg/instrumentation/http"
	"github.com/hyp3rd/onecollector/pkg/logging"
	"github.com/hyp3rd/onecollector/pkg/selftelemetry"
	"github.com/hyp3rd/onecollector/pkg/transport"
)

const scopeName = "onecollector"

// Client owns the active transport and swaps it when the config file changes.
type Client struct {
	mu        sync.RWMutex
	transport *transport.Transport
	retired   []*transport.Transport
	cfg       config.Config
	logger    logging.Adapter

	opts        options
	telemetry   *selftelemetry.Providers
	diagnostics *diagnostics.Server
	reloads     metric.Int64Counter
	state       reloadState
	startTime   time.Time

	cancel   context.CancelFunc
	watchers sync.WaitGroup
	stop     sync.Once
}

// Init loads configuration and builds the transport. A configuration that fails
// validation aborts Init with the validation error in its chain.
// Callers must invoke Shutdown when finished.
func Init(ctx context.Context, opts ...Option) (*Client, error) {
	settings := defaultOptions()
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := settings.loadConfig(ctx)
	if err != nil {
		return nil, ewrap.Wrap(err, "load config")
	}

	logger := settings.logger
	if !settings.loggerOverride {
		logger = logging.FromConfig(cfg.Logging)
	}

	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	telemetry, err := selftelemetry.New(ctx, cfg.SelfTelemetry, cfg.Service)
	if err != nil {
		return nil, ewrap.Wrap(err, "init self telemetry")
	}

	reloads, err := telemetry.MeterProvider().Meter(scopeName).Int64Counter(
		"onecollector.config.reloads",
		metric.WithDescription("Configuration reloads by outcome"),
	)
	if err != nil {
		return nil, errors.Join(ewrap.Wrap(err, "create reload counter"), telemetry.Shutdown(ctx))
	}

	client := &Client{
		cfg:       cfg,
		logger:    logger,
		opts:      settings,
		telemetry: telemetry,
		reloads:   reloads,
		startTime: time.Now().UTC(),
	}

	tr, err := client.buildTransport(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(err, telemetry.Shutdown(ctx))
	}

	client.transport = tr

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	client.cancel = cancel

	if cfg.Diagnostics.Enabled {
		server := diagnostics.NewServer(cfg.Diagnostics, client, logger)

		err = server.Start(runCtx)
		if err != nil {
			logger.Error(ctx, err, "diagnostics server disabled")
		} else {
			client.diagnostics = server
		}
	}

	err = client.startConfigWatcher(runCtx)
	if err != nil {
		logger.Error(ctx, err, "config watcher disabled")
	}

	return client, nil
}

// Transport returns the active transport. A handle replaced by a reload keeps working
// with its previous settings until Shutdown; call Transport again to pick up a reload.
func (c *Client) Transport() *transport.Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.transport
}

// Config returns the active configuration snapshot.
func (c *Client) Config() config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cfg
}

// Reload reloads configuration from the loaders and swaps in a new transport.
// The replaced transport is retired, not closed, so in-flight holders can finish.
// On any failure the active transport is kept and the error is returned.
func (c *Client) Reload(ctx context.Context) error {
	logger := c.currentLogger()

	cfg, err := c.opts.loadConfig(ctx)
	if err != nil {
		return c.rejectReload(ctx, logger, ewrap.Wrap(err, "reload config"))
	}

	if !c.opts.loggerOverride {
		if next := logging.FromConfig(cfg.Logging); next != nil {
			logger = next
		}
	}

	tr, err := c.buildTransport(ctx, cfg, logger)
	if err != nil {
		return c.rejectReload(ctx, logger, err)
	}

	c.mu.Lock()
	if c.transport != nil {
		c.retired = append(c.retired, c.transport)
	}

	c.transport = tr
	c.cfg = cfg
	c.logger = logger
	c.mu.Unlock()

	c.state.recordApplied(time.Now().UTC())
	c.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "applied")))
	logger.Info(ctx, "transport reloaded", logging.KeyEndpoint.String(cfg.Transport.EndpointString()))

	return nil
}

// Snapshot implements diagnostics.SnapshotProvider.
func (c *Client) Snapshot() diagnostics.Snapshot {
	c.mu.RLock()
	cfg := c.cfg
	tr := c.transport
	c.mu.RUnlock()

	count, lastReload, lastErr := c.state.snapshot()
	stats := tr.Stats()

	return diagnostics.Snapshot{
		ServiceName:         cfg.Service.Name,
		ServiceVersion:      cfg.Service.Version,
		Environment:         cfg.Service.Environment,
		Endpoint:            cfg.Transport.EndpointString(),
		Protocol:            string(cfg.Transport.Protocol),
		Compression:         string(cfg.Transport.HTTPCompression),
		MaxPayloadSizeBytes: stats.MaxPayloadSizeBytes,
		MaxItemsPerPayload:  stats.MaxItemsPerPayload,
		ClientConstructed:   stats.ClientConstructed,
		FactoryInvocations:  stats.FactoryInvocations,
		StartTime:           c.startTime,
		LastReloadTime:      lastReload,
		ConfigReloadCount:   count,
		LastReloadError:     lastErr,
		SelfTelemetry:       c.telemetry.Status(),
	}
}

// Shutdown stops watchers and diagnostics, closes the transport and flushes self telemetry.
// Later calls are no-ops.
func (c *Client) Shutdown(ctx context.Context) error {
	var shutdownErr error

	c.stop.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		c.watchers.Wait()

		var errs []error

		if c.diagnostics != nil {
			err := c.diagnostics.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		c.mu.Lock()
		transports := append(c.retired, c.transport)
		c.retired = nil
		c.mu.Unlock()

		for _, tr := range transports {
			err := tr.Close()
			if err != nil {
				errs = append(errs, err)
			}
		}

		err := c.telemetry.Shutdown(ctx)
		if err != nil {
			errs = append(errs, err)
		}

		shutdownErr = errors.Join(errs...)
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown onecollector client")
	}

	return nil
}

func (c *Client) buildTransport(ctx context.Context, cfg config.Config, logger logging.Adapter) (*transport.Transport, error) {
	tcfg := cfg.Transport
	if cfg.Instrumentation.HTTPClient.Enabled {
		tcfg.ClientFactory = onehttp.InstrumentFactory(
			tcfg.ClientFactory,
			c.telemetry.TracerProvider(),
			c.telemetry.MeterProvider(),
		)
	}

	tr, err := transport.New(ctx, tcfg,
		transport.WithLogger(logger),
		transport.WithTracerProvider(c.telemetry.TracerProvider()),
		transport.WithMeterProvider(c.telemetry.MeterProvider()),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "build transport")
	}

	return tr, nil
}

func (c *Client) rejectReload(ctx context.Context, logger logging.Adapter, err error) error {
	c.state.recordRejected(err)
	c.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "rejected")))
	logger.Error(ctx, err, "reload rejected, keeping active transport")

	return err
}

func (c *Client) currentLogger() logging.Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.logger
}

func (c *Client) startConfigWatcher(ctx context.Context) error {
	if !c.opts.watchConfig {
		return nil
	}

	path := c.opts.fileWatcherPath()
	if path == "" {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ewrap.Wrap(err, "resolve config path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ewrap.Wrap(err, "create config watcher")
	}

	err = watcher.Add(filepath.Dir(abs))
	if err != nil {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.logger.Error(ctx, closeErr, "close config watcher after add failure")
		}

		return ewrap.Wrap(err, "watch config directory")
	}

	c.watchers.Add(1)

	go func() {
		defer c.watchers.Done()

		c.watchLoop(ctx, watcher, abs)
	}()

	return nil
}

// watchLoop reloads the transport whenever the watched file is written, created or renamed.
func (c *Client) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			c.currentLogger().Error(ctx, closeErr, "close config watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			c.currentLogger().Info(ctx, "configuration change detected", attribute.String("path", target))

			reloadCtx, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
			//nolint:errcheck // Reload logs and records its own failures.
			_ = c.Reload(reloadCtx)

			cancel()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			c.currentLogger().Error(ctx, err, "config watcher error")
		}
	}
}

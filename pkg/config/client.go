package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hyp3rd/ewrap"
	"golang.org/x/net/http2"

	"github.com/hyp3rd/onecollector/internal/constants"
)

// ErrTLSNotEnabled is returned when no TLS material is configured.
var ErrTLSNotEnabled = ewrap.New("tls is not enabled").WithContext(
	&ewrap.ErrorContext{
		Severity: ewrap.SeverityError,
		Type:     ewrap.ErrorTypeConfiguration,
	},
)

// NewClientFactory returns a ClientFactory producing clients tuned by cfg.
// TLS material is read here, so a bad CA or key pair fails before any client exists.
func NewClientFactory(cfg HTTPClientConfig) (ClientFactory, error) {
	tlsCfg, err := TLSConfigFrom(cfg.TLS)
	if err != nil {
		if !errors.Is(err, ErrTLSNotEnabled) {
			return nil, err
		}

		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return newClientFactory(cfg, tlsCfg), nil
}

func defaultClientFactory() ClientFactory {
	return newClientFactory(DefaultHTTPClientConfig(), &tls.Config{MinVersion: tls.VersionTLS12})
}

func newClientFactory(cfg HTTPClientConfig, tlsCfg *tls.Config) ClientFactory {
	return func() *http.Client {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   constants.DefaultDialTimeout,
				KeepAlive: constants.DefaultDialTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
			MaxConnsPerHost:       cfg.MaxConnsPerHost,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			DisableKeepAlives:     cfg.DisableKeepAlives,
			TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig:       tlsCfg.Clone(),
		}

		if transport.MaxIdleConns == 0 {
			transport.MaxIdleConns = constants.DefaultMaxIdleConns
		}

		if transport.MaxIdleConnsPerHost == 0 {
			transport.MaxIdleConnsPerHost = constants.DefaultMaxIdleConns
		}

		if transport.IdleConnTimeout == 0 {
			transport.IdleConnTimeout = constants.DefaultIdleConnTimeout
		}

		h2, err := http2.ConfigureTransports(transport)
		if err == nil && h2 != nil {
			if cfg.HTTP2ReadIdleTimeout > 0 {
				h2.ReadIdleTimeout = cfg.HTTP2ReadIdleTimeout
			}

			if cfg.HTTP2PingTimeout > 0 {
				h2.PingTimeout = cfg.HTTP2PingTimeout
			}
		}

		return &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		}
	}
}

// TLSConfigFrom builds a tls.Config from the provided TLSConfig.
func TLSConfigFrom(cfg TLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.Insecure {
		return nil, ErrTLSNotEnabled
	}

	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec // allow insecure skip verify via config.
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CAFile != "" {
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, ewrap.Wrapf(err, "read ca file %s", cfg.CAFile)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, ewrap.Newf("failed to parse ca file %s", cfg.CAFile)
		}

		tlsCfg.RootCAs = pool
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, ewrap.New("tls cert_file and key_file must both be set")
		}

		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, ewrap.Wrap(err, "load tls client certificate")
		}

		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

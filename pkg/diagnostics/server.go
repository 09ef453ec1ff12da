// Package diagnostics serves the exporter transport status over HTTP.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyp3rd/onecollector/internal/constants"
	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/logging"
)

// Snapshot captures the active transport and its lifecycle for the status endpoint.
type Snapshot struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Environment    string `json:"environment"`

	Endpoint            string `json:"endpoint"`
	Protocol            string `json:"protocol"`
	Compression         string `json:"compression"`
	MaxPayloadSizeBytes int    `json:"max_payload_size_bytes"`
	MaxItemsPerPayload  int    `json:"max_items_per_payload"`
	ClientConstructed   bool   `json:"client_constructed"`
	FactoryInvocations  int64  `json:"factory_invocations"`

	StartTime         time.Time      `json:"start_time"`
	LastReloadTime    time.Time      `json:"last_reload_time"`
	ConfigReloadCount int64          `json:"config_reload_count"`
	LastReloadError   string         `json:"last_reload_error,omitempty"`
	SelfTelemetry     ExporterStatus `json:"self_telemetry"`
	Timestamp         time.Time      `json:"timestamp"`
}

// ExporterStatus describes self telemetry exporter health.
type ExporterStatus struct {
	Protocol      string    `json:"protocol"`
	Endpoint      string    `json:"endpoint"`
	Dropped       int64     `json:"dropped"`
	LastError     string    `json:"last_error"`
	LastErrorTime time.Time `json:"last_error_time"`
}

// SnapshotProvider supplies diagnostic snapshots.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// StatusPath is the route of the status endpoint.
const StatusPath = "/onecollector/status"

// Server exposes transport status over HTTP.
type Server struct {
	cfg      config.DiagnosticsConfig
	provider SnapshotProvider
	logger   logging.Adapter

	server *http.Server
	addr   net.Addr
	mu     sync.Mutex
	start  sync.Once
	stop   sync.Once
}

// NewServer constructs a diagnostics server. A nil logger discards server errors.
func NewServer(cfg config.DiagnosticsConfig, provider SnapshotProvider, logger logging.Adapter) *Server {
	if logger == nil {
		logger = logging.NewNoopAdapter()
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
	}
}

// Start listens on the configured address and serves until ctx is canceled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.HTTPAddr == "" {
		return ewrap.New("diagnostics http_addr is required")
	}

	var startErr error

	s.start.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET "+StatusPath, s.HandleStatus)

		srv := &http.Server{
			Addr:              s.cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: constants.DefaultTimeout,
		}

		lc := net.ListenConfig{}

		ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
		if err != nil {
			startErr = ewrap.Wrap(err, "listen diagnostics")

			return
		}

		s.mu.Lock()
		s.server = srv
		s.addr = ln.Addr()
		s.mu.Unlock()

		go func() {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
			defer cancel()

			err := s.Shutdown(shutdownCtx)
			if err != nil {
				s.logger.Error(shutdownCtx, err, "shutdown diagnostics server")
			}
		}()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error(ctx, err, "diagnostics server stopped")
			}
		}()

		s.logger.Info(ctx, "diagnostics server listening", attribute.String("addr", ln.Addr().String()))
	})

	return startErr
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Shutdown stops the diagnostics server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.stop.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.server == nil {
			return
		}

		ctxShutdown, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
		defer cancel()

		shutdownErr = s.server.Shutdown(ctxShutdown)
		s.server = nil
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown diagnostics server")
	}

	return nil
}

// HandleStatus writes the current Snapshot as JSON.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" {
		if !validAuth(r.Header.Get("Authorization"), s.cfg.AuthToken) {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}
	}

	snapshot := s.provider.Snapshot()
	snapshot.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(snapshot)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func validAuth(header, token string) bool {
	const prefix = "Bearer "

	if header == "" {
		return false
	}

	if !strings.HasPrefix(header, prefix) {
		return false
	}

	return strings.TrimSpace(header[len(prefix):]) == token
}

package diagnostics_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/diagnostics"
)

type stubSnapshotProvider struct {
	snapshot diagnostics.Snapshot
}

func (s stubSnapshotProvider) Snapshot() diagnostics.Snapshot {
	return s.snapshot
}

func TestHandleStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()

	provider := stubSnapshotProvider{
		snapshot: diagnostics.Snapshot{
			ServiceName:         "test",
			Endpoint:            config.DefaultEndpoint,
			Protocol:            string(config.ProtocolHTTPJSONPost),
			Compression:         string(config.CompressionDeflate),
			MaxPayloadSizeBytes: config.Unlimited,
			MaxItemsPerPayload:  config.DefaultMaxItemsPerPayload,
			SelfTelemetry: diagnostics.ExporterStatus{
				Protocol:      "grpc",
				Endpoint:      "collector:4317",
				LastError:     "boom",
				LastErrorTime: time.Date(2024, 12, 5, 12, 0, 0, 0, time.UTC),
			},
		},
	}
	server := diagnostics.NewServer(
		config.DiagnosticsConfig{
			Enabled:  true,
			HTTPAddr: "127.0.0.1:0",
		},
		provider,
		nil,
	)

	req := httptest.NewRequest(http.MethodGet, diagnostics.StatusPath, nil)
	rr := httptest.NewRecorder()

	server.HandleStatus(rr, req)

	res := rr.Result()

	defer func() {
		err := res.Body.Close()
		if err != nil {
			t.Fatalf("close response body: %v", err)
		}
	}()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: got %d", res.StatusCode)
	}

	var snapshot diagnostics.Snapshot

	err := json.NewDecoder(res.Body).Decode(&snapshot)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if snapshot.Endpoint != config.DefaultEndpoint {
		t.Fatalf("expected endpoint %s, got %s", config.DefaultEndpoint, snapshot.Endpoint)
	}

	if snapshot.MaxPayloadSizeBytes != config.Unlimited {
		t.Fatalf("expected unlimited sentinel to survive encoding, got %d", snapshot.MaxPayloadSizeBytes)
	}

	if snapshot.SelfTelemetry.LastError != "boom" {
		t.Fatalf("expected last error boom, got %s", snapshot.SelfTelemetry.LastError)
	}

	if snapshot.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestHandleStatusAuth(t *testing.T) {
	t.Parallel()

	server := diagnostics.NewServer(
		config.DiagnosticsConfig{
			AuthToken: "secret",
		},
		stubSnapshotProvider{},
		nil,
	)

	req := httptest.NewRequest(http.MethodGet, diagnostics.StatusPath, nil)
	rr := httptest.NewRecorder()

	server.HandleStatus(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when missing auth, got %d", rr.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, diagnostics.StatusPath, bytes.NewBuffer(nil))
	req2.Header.Set("Authorization", "Bearer secret")

	rr2 := httptest.NewRecorder()
	server.HandleStatus(rr2, req2)

	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth, got %d", rr2.Code)
	}
}

func TestServerServesStatus(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := diagnostics.NewServer(
		config.DiagnosticsConfig{Enabled: true, HTTPAddr: "127.0.0.1:0"},
		stubSnapshotProvider{snapshot: diagnostics.Snapshot{ServiceName: "svc"}},
		nil,
	)

	err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	defer func() {
		err := server.Shutdown(context.Background())
		if err != nil {
			t.Fatalf("Shutdown returned error: %v", err)
		}
	}()

	url := "http://" + server.Addr().String() + diagnostics.StatusPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", res.StatusCode)
	}

	var snapshot diagnostics.Snapshot

	err = json.NewDecoder(res.Body).Decode(&snapshot)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if snapshot.ServiceName != "svc" {
		t.Fatalf("expected service svc, got %s", snapshot.ServiceName)
	}
}

func TestStartRequiresAddress(t *testing.T) {
	t.Parallel()

	server := diagnostics.NewServer(config.DiagnosticsConfig{}, stubSnapshotProvider{}, nil)

	err := server.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for empty http_addr")
	}
}

package onecollector_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyp3rd/onecollector/pkg/config"
	"github.com/hyp3rd/onecollector/pkg/logging"
	"github.com/hyp3rd/onecollector/pkg/onecollector"
	"github.com/hyp3rd/onecollector/pkg/transport"
)

func TestInitWithDefaultConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	client, err := onecollector.Init(ctx,
		onecollector.WithConfig(config.DefaultConfig()),
		onecollector.WithConfigWatcher(false),
		onecollector.WithLogger(logging.NewNoopAdapter()),
	)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	tr := client.Transport()
	if tr == nil {
		t.Fatal("expected an active transport")
	}

	if tr.ContentEncoding() != "deflate" {
		t.Fatalf("expected deflate, got %q", tr.ContentEncoding())
	}

	snap := client.Snapshot()
	if snap.Endpoint != config.DefaultEndpoint {
		t.Fatalf("unexpected endpoint %q", snap.Endpoint)
	}

	if snap.MaxPayloadSizeBytes != config.DefaultMaxPayloadSizeBytes || snap.MaxItemsPerPayload != config.DefaultMaxItemsPerPayload {
		t.Fatalf("unexpected ceilings in snapshot: %+v", snap)
	}

	if snap.ClientConstructed {
		t.Fatal("client must be built lazily")
	}

	for range 2 {
		err = client.Shutdown(ctx)
		if err != nil {
			t.Fatalf("Shutdown returned error: %v", err)
		}
	}

	_, err = tr.Client()
	if !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected transport closed after shutdown, got %v", err)
	}
}

func TestInitRejectsInvalidTransport(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Transport.ClientFactory = nil
	cfg.Transport.MaxItemsPerPayload = 0

	client, err := onecollector.Init(context.Background(),
		onecollector.WithConfig(cfg),
		onecollector.WithConfigWatcher(false),
		onecollector.WithLogger(logging.NewNoopAdapter()),
	)
	if err == nil {
		t.Fatal("expected Init to fail")
	}

	if client != nil {
		t.Fatal("no client should be returned on failure")
	}

	verr, ok := config.IsValidationError(err)
	if !ok || verr.Field != "ClientFactory" {
		t.Fatalf("expected ClientFactory to be reported first, got %v", err)
	}
}

func TestReloadKeepsTransportOnInvalidConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := &switchableLoader{}

	client, err := onecollector.Init(ctx,
		onecollector.WithLoaders(source),
		onecollector.WithLogger(logging.NewNoopAdapter()),
	)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Shutdown(ctx)
	})

	original := client.Transport()

	source.set(map[string]any{
		"transport": map[string]any{"max_items_per_payload": 0},
	})

	err = client.Reload(ctx)
	if err == nil {
		t.Fatal("expected reload to be rejected")
	}

	if !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration in chain, got %v", err)
	}

	if client.Transport() != original {
		t.Fatal("a rejected reload must keep the active transport")
	}

	snap := client.Snapshot()
	if snap.ConfigReloadCount != 0 || snap.LastReloadError == "" {
		t.Fatalf("unexpected reload state: %+v", snap)
	}

	source.set(map[string]any{
		"transport": map[string]any{"max_items_per_payload": 10, "max_payload_size_bytes": -1},
	})

	err = client.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	if client.Transport() == original {
		t.Fatal("expected a new transport after a valid reload")
	}

	got := client.Config().Transport
	if got.MaxItemsPerPayload != 10 || !got.PayloadSizeUnlimited() {
		t.Fatalf("unexpected reloaded transport config: %+v", got)
	}

	snap = client.Snapshot()
	if snap.ConfigReloadCount != 1 || snap.LastReloadError != "" {
		t.Fatalf("unexpected reload state: %+v", snap)
	}
}

func TestReloadKeepsHeldTransportUsable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	client, err := onecollector.Init(ctx,
		onecollector.WithConfig(config.DefaultConfig()),
		onecollector.WithConfigWatcher(false),
		onecollector.WithLogger(logging.NewNoopAdapter()),
	)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	held := client.Transport()

	before, err := held.Client()
	if err != nil {
		t.Fatalf("Client returned error: %v", err)
	}

	err = client.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	if client.Transport() == held {
		t.Fatal("expected a new active transport")
	}

	after, err := held.Client()
	if err != nil {
		t.Fatalf("a replaced transport must stay usable until Shutdown, got %v", err)
	}

	if after != before {
		t.Fatal("a replaced transport must keep its cached client")
	}

	err = client.Shutdown(ctx)
	if err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	_, err = held.Client()
	if !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected retired transport closed by Shutdown, got %v", err)
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "onecollector.yaml")

	writeConfig(t, path, "transport:\n  max_items_per_payload: 100\n")

	client, err := onecollector.Init(ctx,
		onecollector.WithLoaders(config.FileLoader{Path: path}),
		onecollector.WithLogger(logging.NewNoopAdapter()),
	)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Shutdown(ctx)
	})

	if got := client.Config().Transport.MaxItemsPerPayload; got != 100 {
		t.Fatalf("expected 100 items from file, got %d", got)
	}

	writeConfig(t, path, "transport:\n  max_items_per_payload: 200\n")

	deadline := time.Now().Add(5 * time.Second)
	for client.Config().Transport.MaxItemsPerPayload != 200 {
		if time.Now().After(deadline) {
			t.Fatal("config change was not picked up")
		}

		time.Sleep(20 * time.Millisecond)
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()

	err := os.WriteFile(path, []byte(body), 0o600)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}
}

type switchableLoader struct {
	mu     sync.Mutex
	values map[string]any
}

func (l *switchableLoader) set(values map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.values = values
}

func (l *switchableLoader) Load(context.Context) (map[string]any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.values, nil
}

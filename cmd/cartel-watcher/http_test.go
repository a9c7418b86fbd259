package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"cartelwatch/config"
	"cartelwatch/internal/integrations/vendorclient/fake"
	"cartelwatch/internal/services/orderpoll"
	"github.com/stretchr/testify/require"
)

type noopProducer struct{}

func (noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

const httpTestOrderID = "68b9e014-3378-4bb3-b121-5a5200d1453b"

func startTestServer(t *testing.T) (base string, p *orderpoll.Poller) {
	t.Helper()

	p = orderpoll.New(fake.New(), noopProducer{}, "order.status.updated", httpTestOrderID)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addrCh := make(chan string, 1)
	go func() {
		_ = runWatcherHTTPServer(ctx, watcherHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
			poller:   p,
			cfg: &config.Config{
				Vendor:  config.VendorConfig{Mode: "fake"},
				Watcher: config.WatcherConfig{PollIntervalSeconds: 15},
			},
		})
	}()

	select {
	case addr := <-addrCh:
		return "http://" + addr, p
	case <-time.After(5 * time.Second):
		t.Fatal("http server did not start")
		return "", nil
	}
}

func TestWatcherHTTP_HealthAndConfig(t *testing.T) {
	base, _ := startTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/config", "/stats"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestWatcherHTTP_Trigger(t *testing.T) {
	base, _ := startTestServer(t)

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body["triggered"])
}

func TestWatcherHTTP_OrderID(t *testing.T) {
	base, p := startTestServer(t)

	resp, err := http.Get(base + "/order-id")
	require.NoError(t, err)
	var got struct {
		OrderID       string `json:"orderId"`
		PollingActive bool   `json:"pollingActive"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	require.Equal(t, httpTestOrderID, got.OrderID)

	// Invalid id is rejected.
	resp, err = http.Post(base+"/order-id", "application/json",
		strings.NewReader(`{"order_id":"nope"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A new valid id replaces the tracked order.
	newID := "123e4567-e89b-12d3-a456-426614174000"
	resp, err = http.Post(base+"/order-id", "application/json",
		strings.NewReader(`{"order_id":"`+newID+`"}`))
	require.NoError(t, err)
	var upd struct {
		Updated bool   `json:"updated"`
		OrderID string `json:"orderId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&upd))
	resp.Body.Close()
	require.True(t, upd.Updated)
	require.Equal(t, newID, upd.OrderID)
	require.Equal(t, newID, p.OrderID())
}

func TestWatcherHTTP_EmailParse(t *testing.T) {
	base, p := startTestServer(t)

	resp, err := http.Post(base+"/email/parse", "application/json",
		strings.NewReader(`{"subject":"Bedankt voor je bestelling","body":"Volg je bestelling: https://www.chickencartel.nl/orders/123e4567-e89b-12d3-a456-426614174000","sender":"no-reply@chickencartel.nl","auto_update":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OrderID string `json:"orderId"`
		Found   bool   `json:"found"`
		Updated bool   `json:"updated"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Found)
	require.Equal(t, "123e4567-e89b-12d3-a456-426614174000", body.OrderID)
	require.True(t, body.Updated)
	require.Equal(t, "123e4567-e89b-12d3-a456-426614174000", p.OrderID())
}

func TestWatcherHTTP_EmailCheck_Disabled(t *testing.T) {
	base, _ := startTestServer(t)

	resp, err := http.Post(base+"/email/check", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

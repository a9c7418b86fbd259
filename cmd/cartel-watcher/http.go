package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"cartelwatch/config"
	"cartelwatch/internal/mail/extract"
	"cartelwatch/internal/mail/monitor"
	"cartelwatch/internal/models"
	"cartelwatch/internal/services/orderpoll"
	"github.com/go-chi/chi/v5"
)

type watcherHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	poller  *orderpoll.Poller
	monitor *monitor.Monitor // nil when email is disabled
	cfg     *config.Config
}

func runWatcherHTTPServer(ctx context.Context, opts watcherHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8081"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		out := map[string]any{"poller": opts.poller.Stats()}
		if opts.monitor != nil {
			out["email"] = opts.monitor.Stats()
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Operational settings only, no credentials.
		out := map[string]any{
			"vendorMode":                opts.cfg.Vendor.Mode,
			"pollIntervalSeconds":       opts.cfg.Watcher.PollIntervalSeconds,
			"emailEnabled":              opts.cfg.Email.Enabled,
			"emailCheckIntervalSeconds": opts.cfg.Email.CheckIntervalSeconds,
			"emailFolder":               opts.cfg.Email.Folder,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		opts.poller.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Get("/order-id", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId":       opts.poller.OrderID(),
			"pollingActive": opts.poller.IsPollingActive(),
		})
	})

	r.Post("/order-id", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid json"}`))
			return
		}
		if !models.ValidateOrderID(req.OrderID) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid order id"}`))
			return
		}
		updated := opts.poller.UpdateOrderID(r.Context(), req.OrderID)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updated": updated,
			"orderId": opts.poller.OrderID(),
		})
	})

	r.Post("/email/check", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.monitor == nil {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"email monitor disabled"}`))
			return
		}
		opts.monitor.CheckNow(r.Context())
		_ = json.NewEncoder(w).Encode(opts.monitor.Stats())
	})

	r.Post("/email/parse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var req struct {
			Subject    string `json:"subject"`
			Body       string `json:"body"`
			HTMLBody   string `json:"html_body"`
			Sender     string `json:"sender"`
			AutoUpdate bool   `json:"auto_update"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid json"}`))
			return
		}
		orderID := extract.FromEmail(req.Subject, req.Body, req.HTMLBody, req.Sender)
		updated := false
		if orderID != "" && req.AutoUpdate {
			updated = opts.poller.UpdateOrderID(r.Context(), orderID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"orderId": orderID,
			"found":   orderID != "",
			"updated": updated,
		})
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

package ordersapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cartelwatch/internal/models"
	"cartelwatch/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type OrdersAPI struct {
	svc *orders.Service
	log *slog.Logger
}

func New(svc *orders.Service, log *slog.Logger) *OrdersAPI {
	return &OrdersAPI{svc: svc, log: log}
}

func (a *OrdersAPI) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/", a.getOrder)
		r.Get("/events", a.listEvents)
	})
	return r
}

type orderResponse struct {
	OrderID       string          `json:"order_id"`
	Status        string          `json:"status"`
	HarmonyStatus *int            `json:"order_harmony_status,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
	CheckedAt     time.Time       `json:"checked_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type eventResponse struct {
	ID            uint64    `json:"id"`
	Status        string    `json:"status"`
	HarmonyStatus *int      `json:"order_harmony_status,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if !models.ValidateOrderID(orderID) {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	snap, err := a.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		a.log.Error("get order failed", "order_id", orderID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		OrderID:       snap.OrderID,
		Status:        snap.Status,
		HarmonyStatus: snap.HarmonyStatus,
		RawPayload:    snap.RawPayload,
		LastError:     snap.LastError,
		CheckedAt:     snap.CheckedAt,
		UpdatedAt:     snap.UpdatedAt,
	})
}

func (a *OrdersAPI) listEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if !models.ValidateOrderID(orderID) {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	evs, err := a.svc.ListStatusEvents(r.Context(), orderID, limit, offset)
	if err != nil {
		a.log.Error("list events failed", "order_id", orderID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]eventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventResponse{
			ID:            e.ID,
			Status:        e.Status,
			HarmonyStatus: e.HarmonyStatus,
			Error:         e.Error,
			CheckedAt:     e.CheckedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

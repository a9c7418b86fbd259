package orderpoll

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cartelwatch/internal/broker/messages"
	"cartelwatch/internal/integrations/vendorclient"
	"cartelwatch/internal/models"
	"github.com/pkg/errors"
)

const DefaultPollInterval = 15 * time.Second

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Poller tracks a single order. While polling is active it refreshes the
// order's status from the vendor on a fixed interval; once a terminal status
// is observed it stops the ticker and serves the last result from memory
// until the tracked order id changes.
type Poller struct {
	vendor   vendor.Client
	producer Producer // optional
	topic    string

	interval time.Duration

	mu      sync.Mutex
	orderID string
	active  bool
	last    *vendor.StatusResult

	triggerCh chan struct{}
	// stateCh tells Run that p.active changed; the handler reads the
	// current value under the mutex, so coalesced or reordered signals
	// always converge on the latest state.
	stateCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRefreshes      atomic.Int64
	totalDegraded       atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(vc vendor.Client, producer Producer, topic, orderID string) *Poller {
	return &Poller{
		vendor:            vc,
		producer:          producer,
		topic:             topic,
		interval:          DefaultPollInterval,
		orderID:           models.NormalizeOrderID(orderID),
		active:            true,
		triggerCh:         make(chan struct{}, 1),
		stateCh:           make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

func (p *Poller) IsPollingActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Poller) OrderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orderID
}

// Current returns the last observation, if any cycle has completed yet.
func (p *Poller) Current() (vendor.StatusResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return vendor.StatusResult{}, false
	}
	return *p.last, true
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	OrderID        string     `json:"orderId"`
	PollingActive  bool       `json:"pollingActive"`
	TotalRefreshes int64      `json:"totalRefreshes"`
	TotalDegraded  int64      `json:"totalDegraded"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		OrderID:        p.OrderID(),
		PollingActive:  p.IsPollingActive(),
		TotalRefreshes: p.totalRefreshes.Load(),
		TotalDegraded:  p.totalDegraded.Load(),
		TotalErrors:    p.totalErrors.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		case <-p.stateCh:
			if p.IsPollingActive() {
				t.Reset(p.interval)
			} else {
				t.Stop()
			}
		}
	}
}

// signalStateChange wakes Run so it reconciles the ticker with p.active.
func (p *Poller) signalStateChange() {
	select {
	case p.stateCh <- struct{}{}:
	default:
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil {
		slog.Error("refresh order status", "order_id", models.ShortOrderID(p.OrderID()), "error", err.Error())
	}
}

// Refresh performs one poll cycle. When polling has stopped and a cached
// result exists, it returns that result without touching the network. A
// returned error is an update failure (unexpected vendor response) and
// leaves all state untouched; the next scheduled cycle retries.
func (p *Poller) Refresh(ctx context.Context) (vendor.StatusResult, error) {
	p.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	p.mu.Lock()
	if !p.active && p.last != nil {
		res := *p.last
		p.mu.Unlock()
		return res, nil
	}
	orderID := p.orderID
	p.mu.Unlock()

	res, err := p.vendor.GetOrderStatus(ctx, orderID)
	if err != nil {
		p.totalErrors.Add(1)
		p.setLastError(err.Error())
		return vendor.StatusResult{}, err
	}
	p.totalRefreshes.Add(1)
	if res.Degraded() {
		p.totalDegraded.Add(1)
		slog.Warn("degraded order status", "order_id", models.ShortOrderID(orderID), "error", res.Err)
	}

	terminal := false
	p.mu.Lock()
	if p.orderID != orderID {
		// Order id changed while the request was in flight; the result
		// belongs to the old order and must not be cached.
		p.mu.Unlock()
		return res, nil
	}
	p.last = &res
	if !res.Degraded() && models.IsTerminalStatus(res.Status) && p.active {
		p.active = false
		terminal = true
	}
	p.mu.Unlock()

	if terminal {
		p.signalStateChange()
		slog.Info("order reached terminal status, stopping polling",
			"order_id", models.ShortOrderID(orderID), "status", res.Status)
	}

	if err := p.publish(ctx, res, terminal); err != nil {
		slog.Error("publish order status", "order_id", models.ShortOrderID(orderID), "error", err.Error())
	}
	return res, nil
}

// UpdateOrderID replaces the tracked order id. A same (case-insensitive) id
// is a no-op. A new id resets polling to active, discards the cached result
// and forces one refresh before returning. Reports whether the id changed.
func (p *Poller) UpdateOrderID(ctx context.Context, newOrderID string) bool {
	norm := models.NormalizeOrderID(newOrderID)

	p.mu.Lock()
	if norm == strings.ToLower(p.orderID) {
		p.mu.Unlock()
		slog.Debug("order id unchanged, skipping update")
		return false
	}
	old := p.orderID
	p.orderID = norm
	p.active = true
	p.last = nil
	p.mu.Unlock()

	slog.Info("order id updated, restarting polling",
		"old", models.ShortOrderID(old), "new", models.ShortOrderID(norm))

	p.signalStateChange()

	if _, err := p.Refresh(ctx); err != nil {
		slog.Error("forced refresh after order id update", "error", err.Error())
	}
	return true
}

func (p *Poller) publish(ctx context.Context, res vendor.StatusResult, terminal bool) error {
	if p.producer == nil {
		return nil
	}

	msg := messages.OrderStatusUpdated{
		OrderID:       res.OrderID,
		CheckedAt:     time.Now().UTC(),
		Status:        res.Status,
		HarmonyStatus: res.HarmonyStatus,
		RawPayload:    res.RawPayload,
		Terminal:      terminal,
	}
	if res.Err != "" {
		e := res.Err
		msg.Error = &e
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}
	return p.producer.Publish(ctx, p.topic, []byte(res.OrderID), b)
}

func (p *Poller) setLastError(s string) {
	p.lastErrorMu.Lock()
	p.lastError = s
	p.lastErrorMu.Unlock()
}

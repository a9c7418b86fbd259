// Package monitor watches an inbox for order-confirmation mail and feeds
// discovered order ids to a callback.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cartelwatch/internal/mail/extract"
	"cartelwatch/internal/models"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

const DefaultCheckInterval = 60 * time.Second

// Mailbox is one connected folder of an IMAP account.
type Mailbox interface {
	Connect(ctx context.Context) error
	// SearchUnseen returns the UIDs of unseen messages, ascending.
	SearchUnseen(ctx context.Context) ([]uint32, error)
	// Fetch returns the raw RFC 822 bytes of one message.
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	Close() error
}

// WatermarkStore persists the last processed UID across restarts.
// Best-effort: load/store failures are logged, never fatal.
type WatermarkStore interface {
	Load(ctx context.Context) (uint32, bool, error)
	Store(ctx context.Context, uid uint32) error
}

type OnOrderIDFound func(ctx context.Context, orderID string)

// Monitor periodically checks the mailbox for unseen messages strictly
// newer than the watermark, decides whether each is relevant, runs the
// extractor and invokes the callback on a hit. Any mailbox-level error
// tears down the connection; the next cycle reconnects.
type Monitor struct {
	box       Mailbox
	username  string
	onFound   OnOrderIDFound
	interval  time.Duration
	watermark WatermarkStore // optional

	cron *cron.Cron

	mu        sync.Mutex // one check cycle at a time
	connected bool
	lastUID   uint32
	wmLoaded  bool

	lastCycleUnixNano atomic.Int64
	totalCycles       atomic.Int64
	totalProcessed    atomic.Int64
	totalFound        atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(box Mailbox, username string, onFound OnOrderIDFound) *Monitor {
	return &Monitor{
		box:      box,
		username: strings.ToLower(username),
		onFound:  onFound,
		interval: DefaultCheckInterval,
		cron:     cron.New(),
	}
}

func (m *Monitor) WithCheckInterval(d time.Duration) *Monitor {
	if d > 0 {
		m.interval = d
	}
	return m
}

func (m *Monitor) WithWatermarkStore(ws WatermarkStore) *Monitor {
	m.watermark = ws
	return m
}

// Start schedules the periodic inbox check.
func (m *Monitor) Start() error {
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(spec, func() {
		m.CheckNow(context.Background())
	}); err != nil {
		return errors.Wrap(err, "schedule email check")
	}
	m.cron.Start()
	slog.Info("email monitor started", "interval", m.interval.String())
	return nil
}

// Stop halts the schedule and closes the mailbox connection.
func (m *Monitor) Stop() {
	m.cron.Stop()
	m.mu.Lock()
	m.teardown()
	m.mu.Unlock()
	slog.Info("email monitor stopped")
}

type Stats struct {
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	TotalCycles    int64      `json:"totalCycles"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalFound     int64      `json:"totalFound"`
	LastUID        uint32     `json:"lastUid"`
	LastError      string     `json:"lastError,omitempty"`
}

func (m *Monitor) Stats() Stats {
	st := Stats{
		TotalCycles:    m.totalCycles.Load(),
		TotalProcessed: m.totalProcessed.Load(),
		TotalFound:     m.totalFound.Load(),
	}
	if n := m.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	m.mu.Lock()
	st.LastUID = m.lastUID
	m.mu.Unlock()
	m.lastErrorMu.Lock()
	st.LastError = m.lastError
	m.lastErrorMu.Unlock()
	return st
}

// CheckNow runs one check cycle. Errors are logged and end the cycle early;
// the next scheduled cycle retries with a fresh connection.
func (m *Monitor) CheckNow(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())
	m.totalCycles.Add(1)

	if err := m.checkOnce(ctx); err != nil {
		slog.Error("email check failed", "error", err.Error())
		m.setLastError(err.Error())
		m.teardown()
	}
}

func (m *Monitor) checkOnce(ctx context.Context) error {
	if !m.connected {
		if err := m.box.Connect(ctx); err != nil {
			return errors.Wrap(err, "connect mailbox")
		}
		m.connected = true
	}
	if !m.wmLoaded && m.watermark != nil {
		if uid, ok, err := m.watermark.Load(ctx); err != nil {
			slog.Warn("load email watermark", "error", err.Error())
		} else if ok && uid > m.lastUID {
			m.lastUID = uid
		}
		m.wmLoaded = true
	}

	uids, err := m.box.SearchUnseen(ctx)
	if err != nil {
		return errors.Wrap(err, "search unseen")
	}

	for _, uid := range uids {
		if uid <= m.lastUID {
			continue
		}
		raw, err := m.box.Fetch(ctx, uid)
		if err != nil {
			return errors.Wrapf(err, "fetch uid %d", uid)
		}
		if err := m.processMessage(ctx, raw); err != nil {
			slog.Warn("process message", "uid", uid, "error", err.Error())
			continue
		}
		m.advance(ctx, uid)
	}
	return nil
}

func (m *Monitor) processMessage(ctx context.Context, raw []byte) error {
	em, err := parseMessage(raw)
	if err != nil {
		return err
	}

	if !m.relevant(em) {
		slog.Debug("skipping email", "sender", em.Sender)
		return nil
	}
	m.totalProcessed.Add(1)

	orderID := extract.FromEmail(em.Subject, em.Body, em.HTMLBody, em.Sender)
	if orderID == "" {
		slog.Debug("no order id found in email", "sender", em.Sender)
		return nil
	}

	slog.Info("found order id in email",
		"order_id", models.ShortOrderID(orderID), "sender", em.Sender)
	m.totalFound.Add(1)
	if m.onFound != nil {
		m.onFound(ctx, orderID)
	}
	return nil
}

// relevant applies the sender/subject/body heuristic: vendor sender, or
// self-sent mail whose subject and content carry vendor markers. The
// heuristic is deliberately loose (a self-sent mail containing the bare
// word "order" passes the subject gate).
func (m *Monitor) relevant(em *ParsedEmail) bool {
	sender := strings.ToLower(em.Sender)

	isVendor := extract.IsVendorSender(em.Sender)

	isFromSelf := m.username != "" &&
		(strings.Contains(sender, m.username) || strings.Contains(m.username, sender))

	subject := strings.ToLower(em.Subject)
	hasVendorSubject := strings.Contains(subject, "chickencartel") ||
		strings.Contains(subject, "bestelling") ||
		strings.Contains(subject, "order")

	if !isVendor && !(isFromSelf && hasVendorSubject) {
		return false
	}

	if isFromSelf && !isVendor {
		slog.Debug("processing forwarded email from self", "sender", em.Sender)
		combined := strings.ToLower(em.Subject + " " + em.Body + " " + em.HTMLBody)
		hasVendorContent := strings.Contains(combined, "chickencartel") ||
			strings.Contains(combined, "chickencartel.nl") ||
			strings.Contains(combined, "dehamburgerij") ||
			strings.Contains(combined, "/orders/")
		if !hasVendorContent {
			return false
		}
	}
	return true
}

func (m *Monitor) advance(ctx context.Context, uid uint32) {
	if uid <= m.lastUID {
		return
	}
	m.lastUID = uid
	if m.watermark != nil {
		if err := m.watermark.Store(ctx, uid); err != nil {
			slog.Warn("store email watermark", "error", err.Error())
		}
	}
}

func (m *Monitor) teardown() {
	if m.connected {
		if err := m.box.Close(); err != nil {
			slog.Debug("close mailbox", "error", err.Error())
		}
	}
	m.connected = false
}

func (m *Monitor) setLastError(s string) {
	m.lastErrorMu.Lock()
	m.lastError = s
	m.lastErrorMu.Unlock()
}

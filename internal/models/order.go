package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Normalized order statuses mapped from the vendor's OrderHarmonyStatus code.
const (
	StatusFailed           = "failed"
	StatusCancelled        = "cancelled"
	StatusReceived         = "received"
	StatusPOS              = "pos"
	StatusAccepted         = "accepted"
	StatusPreparing        = "preparing"
	StatusWaitingForDriver = "waiting_for_driver"
	StatusEnRoute          = "en_route"
	StatusCompleted        = "completed"
	StatusUnknown          = "unknown"
)

var statusByHarmonyCode = map[int]string{
	-1: StatusFailed,
	0:  StatusCancelled,
	1:  StatusReceived,
	2:  StatusPOS,
	3:  StatusAccepted,
	4:  StatusPreparing,
	5:  StatusWaitingForDriver,
	6:  StatusEnRoute,
	7:  StatusCompleted,
}

// StatusForCode maps a raw OrderHarmonyStatus code to a normalized status.
// An absent or unrecognized code maps to StatusUnknown.
func StatusForCode(code *int) string {
	if code == nil {
		return StatusUnknown
	}
	if s, ok := statusByHarmonyCode[*code]; ok {
		return s
	}
	return StatusUnknown
}

// IsTerminalStatus reports whether no further status changes are expected,
// i.e. whether polling for the order should stop.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Order ids are canonical UUID strings. uuid.Parse alone is too permissive
// here (it also accepts hyphenless and urn: forms), so the shape is checked
// against the canonical 8-4-4-4-12 pattern first.
var orderIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateOrderID reports whether s is a canonical UUID string
// (case-insensitive, surrounding whitespace ignored).
func ValidateOrderID(s string) bool {
	return orderIDPattern.MatchString(strings.TrimSpace(s))
}

// NormalizeOrderID trims and lowercases an order id. Valid UUIDs are
// normalized through uuid.Parse; anything else is lowercased as-is.
func NormalizeOrderID(s string) string {
	s = strings.TrimSpace(s)
	if ValidateOrderID(s) {
		if id, err := uuid.Parse(s); err == nil {
			return id.String()
		}
	}
	return strings.ToLower(s)
}

// ShortOrderID returns an abbreviated id for logs.
func ShortOrderID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

// OrderSnapshot is the current known state of a tracked order.
type OrderSnapshot struct {
	OrderID       string
	Status        string
	HarmonyStatus *int
	RawPayload    json.RawMessage
	LastError     *string
	CheckedAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderStatusEvent is one observed status for an order's history.
type OrderStatusEvent struct {
	ID            uint64
	OrderID       string
	Status        string
	HarmonyStatus *int
	Error         *string
	CheckedAt     time.Time
	CreatedAt     time.Time
}

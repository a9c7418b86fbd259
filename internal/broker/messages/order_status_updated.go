package messages

import (
	"encoding/json"
	"time"
)

// OrderStatusUpdated is published after every completed poll cycle,
// including degraded observations (404, network failure).
type OrderStatusUpdated struct {
	OrderID   string    `json:"order_id"`
	CheckedAt time.Time `json:"checked_at"`

	Status        string          `json:"status"`
	HarmonyStatus *int            `json:"order_harmony_status,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`

	Error *string `json:"error,omitempty"`

	// Terminal marks the observation that stopped polling.
	Terminal bool `json:"terminal,omitempty"`
}

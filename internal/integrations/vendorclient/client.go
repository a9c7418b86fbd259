package vendor

import (
	"context"
	"encoding/json"
)

// StatusResult is one observation of an order's status.
//
// Degraded observations (order not found, network failure) come back with
// Status "unknown" and Err set; they are data, not errors. A non-nil error
// from GetOrderStatus means an unexpected vendor response that the caller
// should surface as an update failure and retry on its own schedule.
type StatusResult struct {
	OrderID       string
	Status        string
	HarmonyStatus *int
	RawPayload    json.RawMessage
	Err           string
}

// Degraded reports whether the observation carries an error marker instead
// of a real vendor status.
func (r StatusResult) Degraded() bool {
	return r.Err != ""
}

type Client interface {
	GetOrderStatus(ctx context.Context, orderID string) (StatusResult, error)
}

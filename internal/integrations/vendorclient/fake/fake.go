package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"cartelwatch/internal/integrations/vendorclient"
	"cartelwatch/internal/models"
)

// FakeClient is a local stand-in for the vendor API. It walks an order
// through the normal lifecycle deterministically: each call advances the
// harmony code by one until the order completes, with the starting point
// derived from the order id.
type FakeClient struct {
	calls map[string]int
}

func New() *FakeClient {
	return &FakeClient{calls: make(map[string]int)}
}

func (f *FakeClient) GetOrderStatus(ctx context.Context, orderID string) (vendor.StatusResult, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	start := int(h.Sum32() % 4) // received..preparing

	code := 1 + start + f.calls[orderID]
	if code > 7 {
		code = 7
	}
	f.calls[orderID]++

	raw := json.RawMessage(fmt.Sprintf(`{"OrderHarmonyStatus": %d, "Source": "fake"}`, code))
	return vendor.StatusResult{
		OrderID:       orderID,
		Status:        models.StatusForCode(&code),
		HarmonyStatus: &code,
		RawPayload:    raw,
	}, nil
}

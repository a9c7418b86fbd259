package orderpoll

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cartelwatch/internal/broker/messages"
	"cartelwatch/internal/integrations/vendorclient"
	"cartelwatch/internal/models"
	"github.com/stretchr/testify/require"
)

const testOrderID = "68b9e014-3378-4bb3-b121-5a5200d1453b"

type fakeVendor struct {
	mu    sync.Mutex
	res   vendor.StatusResult
	err   error
	calls int
}

func (v *fakeVendor) GetOrderStatus(ctx context.Context, orderID string) (vendor.StatusResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return vendor.StatusResult{}, v.err
	}
	res := v.res
	res.OrderID = orderID
	return res, nil
}

func (v *fakeVendor) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *fakeVendor) set(res vendor.StatusResult, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.res, v.err = res, err
}

type fakeProducer struct {
	topic  string
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.topic = topic
	p.values = append(p.values, value)
	return p.err
}

func statusResult(code int) vendor.StatusResult {
	c := code
	return vendor.StatusResult{
		Status:        models.StatusForCode(&c),
		HarmonyStatus: &c,
		RawPayload:    json.RawMessage(`{}`),
	}
}

func TestPoller_Refresh_NonTerminalStaysActive(t *testing.T) {
	fv := &fakeVendor{res: statusResult(6)} // en_route
	fp := &fakeProducer{}
	p := New(fv, fp, "order.status.updated", testOrderID)

	res, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusEnRoute, res.Status)
	require.True(t, p.IsPollingActive())

	_, err = p.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fv.callCount())
}

func TestPoller_Refresh_TerminalStopsPolling(t *testing.T) {
	for _, code := range []int{7, 0, -1} { // completed, cancelled, failed
		fv := &fakeVendor{res: statusResult(code)}
		p := New(fv, nil, "", testOrderID)

		res, err := p.Refresh(context.Background())
		require.NoError(t, err)
		require.True(t, models.IsTerminalStatus(res.Status))
		require.False(t, p.IsPollingActive())

		// Stopped: cached data is returned, no network call.
		again, err := p.Refresh(context.Background())
		require.NoError(t, err)
		require.Equal(t, res.Status, again.Status)
		require.Equal(t, 1, fv.callCount())
	}
}

func TestPoller_Refresh_DegradedDoesNotChangeState(t *testing.T) {
	fv := &fakeVendor{res: vendor.StatusResult{
		Status: models.StatusUnknown,
		Err:    "Order not found",
	}}
	p := New(fv, nil, "", testOrderID)

	res, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, res.Degraded())
	require.Equal(t, models.StatusUnknown, res.Status)
	require.Nil(t, res.HarmonyStatus)
	require.Equal(t, "Order not found", res.Err)
	require.True(t, p.IsPollingActive())
}

func TestPoller_Refresh_UpdateFailureLeavesStateUntouched(t *testing.T) {
	fv := &fakeVendor{res: statusResult(6)}
	p := New(fv, nil, "", testOrderID)
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	fv.set(vendor.StatusResult{}, errors.New("vendor api http 502"))
	_, err = p.Refresh(context.Background())
	require.Error(t, err)
	require.True(t, p.IsPollingActive())

	// Cached observation survives the failed cycle.
	cur, ok := p.Current()
	require.True(t, ok)
	require.Equal(t, models.StatusEnRoute, cur.Status)
	require.Equal(t, int64(1), p.Stats().TotalErrors)
	require.Contains(t, p.Stats().LastError, "502")
}

func TestPoller_UpdateOrderID_SameIDIsNoop(t *testing.T) {
	fv := &fakeVendor{res: statusResult(7)}
	p := New(fv, nil, "", testOrderID)
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, p.IsPollingActive())

	changed := p.UpdateOrderID(context.Background(), "  68B9E014-3378-4BB3-B121-5A5200D1453B  ")
	require.False(t, changed)
	require.False(t, p.IsPollingActive())
	require.Equal(t, 1, fv.callCount())
}

func TestPoller_UpdateOrderID_NewIDResumesPolling(t *testing.T) {
	fv := &fakeVendor{res: statusResult(7)}
	p := New(fv, nil, "", testOrderID)
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, p.IsPollingActive())

	fv.set(statusResult(4), nil) // preparing
	changed := p.UpdateOrderID(context.Background(), "123E4567-E89B-12D3-A456-426614174000")
	require.True(t, changed)
	require.True(t, p.IsPollingActive())
	require.Equal(t, "123e4567-e89b-12d3-a456-426614174000", p.OrderID())

	// The update forced one refresh for the new order.
	require.Equal(t, 2, fv.callCount())
	cur, ok := p.Current()
	require.True(t, ok)
	require.Equal(t, models.StatusPreparing, cur.Status)
	require.Equal(t, "123e4567-e89b-12d3-a456-426614174000", cur.OrderID)
}

func TestPoller_Refresh_PublishesUpdate(t *testing.T) {
	fv := &fakeVendor{res: statusResult(7)}
	fp := &fakeProducer{}
	p := New(fv, fp, "order.status.updated", testOrderID)

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "order.status.updated", fp.topic)
	require.Len(t, fp.values, 1)

	var m messages.OrderStatusUpdated
	require.NoError(t, json.Unmarshal(fp.values[0], &m))
	require.Equal(t, testOrderID, m.OrderID)
	require.Equal(t, models.StatusCompleted, m.Status)
	require.True(t, m.Terminal)
	require.Nil(t, m.Error)
}

func TestPoller_Run_TerminalThenNewOrderKeepsTicking(t *testing.T) {
	// A terminal observation immediately followed by a new order id queues
	// two state changes before Run has drained either. Whatever order they
	// are seen in, the ticker must end up running for the new order.
	fv := &fakeVendor{res: statusResult(7)} // completed
	p := New(fv, nil, "", testOrderID).WithInterval(20 * time.Millisecond)

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, p.IsPollingActive())

	fv.set(statusResult(4), nil) // preparing
	require.True(t, p.UpdateOrderID(context.Background(), "123e4567-e89b-12d3-a456-426614174000"))
	require.True(t, p.IsPollingActive())
	base := fv.callCount()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Periodic cycles keep happening well past the initial one.
	require.Eventually(t, func() bool { return fv.callCount() >= base+5 },
		2*time.Second, 10*time.Millisecond)
	require.True(t, p.IsPollingActive())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestPoller_Run_TriggerForcesCycle(t *testing.T) {
	fv := &fakeVendor{res: statusResult(6)}
	p := New(fv, nil, "", testOrderID).WithInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return fv.callCount() >= 1 }, time.Second, 10*time.Millisecond)
	p.Trigger()
	require.Eventually(t, func() bool { return fv.callCount() >= 2 }, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

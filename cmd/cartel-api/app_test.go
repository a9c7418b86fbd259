package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"cartelwatch/internal/broker/messages"
	"cartelwatch/internal/models"
	"cartelwatch/internal/services/orders"
	"github.com/stretchr/testify/require"
)

const testOrderID = "68b9e014-3378-4bb3-b121-5a5200d1453b"

type memRepo struct {
	mu    sync.Mutex
	snaps map[string]*models.OrderSnapshot
}

func newMemRepo() *memRepo {
	return &memRepo{snaps: map[string]*models.OrderSnapshot{}}
}

func (r *memRepo) ApplyStatusUpdate(ctx context.Context, upd messages.OrderStatusUpdated) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[upd.OrderID] = &models.OrderSnapshot{
		OrderID:       upd.OrderID,
		Status:        upd.Status,
		HarmonyStatus: upd.HarmonyStatus,
		LastError:     upd.Error,
		CheckedAt:     upd.CheckedAt,
	}
	return nil
}
func (r *memRepo) GetOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[orderID], nil
}
func (r *memRepo) ListStatusEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.OrderStatusEvent, error) {
	return []*models.OrderStatusEvent{}, nil
}

// replayConsumer feeds one canned message through the handler, then blocks.
type replayConsumer struct {
	value []byte
}

func (c replayConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	if err := handler([]byte(testOrderID), c.value); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunCartelAPI_ConsumesAndServes(t *testing.T) {
	repo := newMemRepo()
	svc := orders.New(repo, nil, 0)

	code := 6
	msg, err := json.Marshal(messages.OrderStatusUpdated{
		OrderID:       testOrderID,
		CheckedAt:     time.Now().UTC(),
		Status:        models.StatusEnRoute,
		HarmonyStatus: &code,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runCartelAPI(ctx, cartelAPIOpts{
			httpAddr:      "127.0.0.1:0",
			topic:         "t",
			consumerGroup: "g",
			onListen:      func(addr string) { addrCh <- addr },
		}, svc, replayConsumer{value: msg})
	}()

	addr := <-addrCh

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/orders/" + testOrderID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/orders/" + testOrderID)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, testOrderID, body.OrderID)
	require.Equal(t, models.StatusEnRoute, body.Status)

	cancel()
	require.Error(t, <-errCh)
}

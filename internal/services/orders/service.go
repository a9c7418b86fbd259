package orders

import (
	"context"
	"encoding/json"
	"time"

	"cartelwatch/internal/broker/messages"
	"cartelwatch/internal/cache"
	"cartelwatch/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ApplyStatusUpdate(ctx context.Context, upd messages.OrderStatusUpdated) error
	GetOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error)
	ListStatusEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.OrderStatusEvent, error)
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

// GetOrder returns the current snapshot for an order, or nil when the order
// has never been observed. The snapshot is cached best-effort.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error) {
	if !models.ValidateOrderID(orderID) {
		return nil, errors.New("invalid order id")
	}
	orderID = models.NormalizeOrderID(orderID)

	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(orderID)); err == nil && ok {
			var snap models.OrderSnapshot
			if json.Unmarshal(b, &snap) == nil {
				return &snap, nil
			}
		}
	}

	snap, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if snap != nil && s.cache != nil && s.currentTTL > 0 {
		if b, err := json.Marshal(snap); err == nil {
			_ = s.cache.Set(ctx, currentKey(orderID), b, s.currentTTL)
		}
	}
	return snap, nil
}

func (s *Service) ListStatusEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.OrderStatusEvent, error) {
	if !models.ValidateOrderID(orderID) {
		return nil, errors.New("invalid order id")
	}
	return s.repo.ListStatusEvents(ctx, models.NormalizeOrderID(orderID), limit, offset)
}

// ApplyKafkaUpdate persists one observation and refreshes the cached snapshot.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.OrderStatusUpdated) error {
	if msg.OrderID == "" {
		return errors.New("order_id is required")
	}
	msg.OrderID = models.NormalizeOrderID(msg.OrderID)
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = models.StatusForCode(msg.HarmonyStatus)
	}

	if err := s.repo.ApplyStatusUpdate(ctx, msg); err != nil {
		return err
	}

	if s.cache != nil && s.currentTTL > 0 {
		snap, err := s.repo.GetOrder(ctx, msg.OrderID)
		if err == nil && snap != nil {
			if b, err := json.Marshal(snap); err == nil {
				_ = s.cache.Set(ctx, currentKey(msg.OrderID), b, s.currentTTL)
			}
		}
	}
	return nil
}

func currentKey(orderID string) string {
	return "order:" + orderID + ":current"
}

package pgorders

import (
	"context"
	"time"

	"cartelwatch/internal/broker/messages"
	"cartelwatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ApplyStatusUpdate upserts the order snapshot and appends a history event.
// Re-delivered messages and repeated observations of the same status are
// absorbed by the dedup index.
func (s *Storage) ApplyStatusUpdate(ctx context.Context, upd messages.OrderStatusUpdated) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw any
	if len(upd.RawPayload) > 0 {
		raw = []byte(upd.RawPayload)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO orders (
  order_id, status, harmony_status, raw_payload, last_error, checked_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (order_id)
DO UPDATE SET
  status = EXCLUDED.status,
  harmony_status = EXCLUDED.harmony_status,
  raw_payload = EXCLUDED.raw_payload,
  last_error = EXCLUDED.last_error,
  checked_at = EXCLUDED.checked_at,
  updated_at = EXCLUDED.updated_at
`, upd.OrderID, upd.Status, upd.HarmonyStatus, raw, upd.Error, upd.CheckedAt, now)
	if err != nil {
		return errors.Wrap(err, "upsert order")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO order_status_events (order_id, status, harmony_status, error, checked_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT DO NOTHING
`, upd.OrderID, upd.Status, upd.HarmonyStatus, upd.Error, upd.CheckedAt, now)
	if err != nil {
		return errors.Wrap(err, "insert status event")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// GetOrder returns the current snapshot, or nil when the order is unknown.
func (s *Storage) GetOrder(ctx context.Context, orderID string) (*models.OrderSnapshot, error) {
	row := s.db.QueryRow(ctx, `
SELECT order_id, status, harmony_status, raw_payload, last_error, checked_at, created_at, updated_at
FROM orders
WHERE order_id = $1
`, orderID)

	var o models.OrderSnapshot
	var raw []byte
	err := row.Scan(&o.OrderID, &o.Status, &o.HarmonyStatus, &raw, &o.LastError, &o.CheckedAt, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	if raw != nil {
		o.RawPayload = raw
	}
	return &o, nil
}

// ListStatusEvents returns the order's history, newest first.
func (s *Storage) ListStatusEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.OrderStatusEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, order_id, status, harmony_status, error, checked_at, created_at
FROM order_status_events
WHERE order_id = $1
ORDER BY checked_at DESC, id DESC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.OrderStatusEvent
	for rows.Next() {
		var e models.OrderStatusEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.HarmonyStatus, &e.Error, &e.CheckedAt, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

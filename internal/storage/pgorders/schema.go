package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  order_id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  harmony_status INT NULL,
  raw_payload JSONB NULL,
  last_error TEXT NULL,
  checked_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS order_status_events (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  harmony_status INT NULL,
  error TEXT NULL,
  checked_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_status_events_order_id_checked_at ON order_status_events(order_id, checked_at DESC)`,
		// One event per distinct observed status per order; repeated polls
		// of an unchanged status do not bloat the history.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_order_status_events_dedup ON order_status_events(order_id, status, COALESCE(harmony_status, -1000), COALESCE(error, ''))`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

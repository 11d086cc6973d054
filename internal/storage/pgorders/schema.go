package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL DEFAULT '',
  items JSONB NOT NULL DEFAULT '[]',
  address JSONB NULL,
  amount NUMERIC(14,2) NOT NULL DEFAULT 0,
  payment_method TEXT NOT NULL DEFAULT '',
  payment BOOLEAN NOT NULL DEFAULT FALSE,
  status TEXT NOT NULL,
  order_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
  carrier_order_id TEXT NULL,
  carrier_shipment_id TEXT NULL,
  last_tracking_update TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  placed_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// tables created before poll bookkeeping existed
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS next_check_at TIMESTAMPTZ NULL`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS check_fail_count INT NOT NULL DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_orders_placed_at ON orders(placed_at DESC)`,
		// Poller scans only shipped, non-terminal orders.
		`DROP INDEX IF EXISTS idx_orders_trackable`,
		`
CREATE INDEX IF NOT EXISTS idx_orders_due
  ON orders(next_check_at NULLS FIRST, last_tracking_update NULLS FIRST)
  WHERE carrier_shipment_id IS NOT NULL AND status NOT IN ('Delivered', 'Cancelled')
`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

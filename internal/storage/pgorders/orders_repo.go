package pgorders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, user_id, items, address, amount, payment_method, payment,
  status, order_cancelled,
  carrier_order_id, carrier_shipment_id, last_tracking_update,
  placed_at, created_at, updated_at,
  next_check_at, check_fail_count`

var terminalStatuses = []string{
	string(models.OrderStatusDelivered),
	string(models.OrderStatusCancelled),
}

// InsertOrder stores an order as handed over by order placement.
func (s *Storage) InsertOrder(ctx context.Context, o *models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal items")
	}
	var addr []byte
	if o.Address != nil {
		if addr, err = json.Marshal(o.Address); err != nil {
			return errors.Wrap(err, "marshal address")
		}
	}

	now := time.Now().UTC()
	if o.PlacedAt.IsZero() {
		o.PlacedAt = now
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPlaced
	}
	o.CreatedAt, o.UpdatedAt = now, now

	_, err = s.db.Exec(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14,$15,$16)
`,
		o.ID, o.UserID, items, addr, o.Amount, o.PaymentMethod, o.Payment,
		string(o.Status), o.OrderCancelled,
		o.CarrierOrderID, o.CarrierShipmentID, o.LastTrackingUpdate,
		o.PlacedAt, now,
		o.NextCheckAt, o.CheckFailCount,
	)
	return errors.Wrap(err, "insert order")
}

func (s *Storage) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrders returns the found orders in no particular order; missing ids
// are skipped.
func (s *Storage) GetOrders(ctx context.Context, ids []string) ([]*models.Order, error) {
	if len(ids) == 0 {
		return []*models.Order{}, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	return collectOrders(rows)
}

// SetCarrierIDs records the carrier ids once. It reports false when the
// order already had a shipment.
func (s *Storage) SetCarrierIDs(ctx context.Context, id, carrierOrderID, carrierShipmentID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET carrier_order_id = $2, carrier_shipment_id = $3, updated_at = now()
WHERE id = $1 AND carrier_shipment_id IS NULL
`, id, carrierOrderID, carrierShipmentID)
	if err != nil {
		return false, errors.Wrap(err, "set carrier ids")
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateTrackedStatus writes a status observed by tracking. Orders already in
// a terminal status are left alone; applied is false for them and for
// unknown ids.
func (s *Storage) UpdateTrackedStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (prev models.OrderStatus, applied bool, err error) {
	var p string
	err = s.db.QueryRow(ctx, `
WITH cur AS (
  SELECT id, status FROM orders WHERE id = $1 FOR UPDATE
)
UPDATE orders o
SET status = $2, last_tracking_update = $3, updated_at = now()
FROM cur
WHERE o.id = cur.id AND NOT (cur.status = ANY($4))
RETURNING cur.status
`, id, string(status), at.UTC(), terminalStatuses).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "update tracked status")
	}
	return models.OrderStatus(p), true, nil
}

// MarkCancelled is the customer/admin cancellation. It always wins over
// whatever tracking reported.
func (s *Storage) MarkCancelled(ctx context.Context, id string) (models.OrderStatus, error) {
	return s.setStatus(ctx, id, models.OrderStatusCancelled, true)
}

// UpdateStatus is a manual override and ignores the terminal guard.
func (s *Storage) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (models.OrderStatus, error) {
	return s.setStatus(ctx, id, status, false)
}

func (s *Storage) setStatus(ctx context.Context, id string, status models.OrderStatus, cancelled bool) (models.OrderStatus, error) {
	var p string
	err := s.db.QueryRow(ctx, `
WITH cur AS (
  SELECT id, status FROM orders WHERE id = $1 FOR UPDATE
)
UPDATE orders o
SET status = $2, order_cancelled = o.order_cancelled OR $3, updated_at = now()
FROM cur
WHERE o.id = cur.id
RETURNING cur.status
`, id, string(status), cancelled).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrOrderNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "update order status")
	}
	return models.OrderStatus(p), nil
}

// RecordCheck stores the outcome of one poll. A failure bumps the failure
// counter, a success resets it; next is when the order is due again.
func (s *Storage) RecordCheck(ctx context.Context, id string, failed bool, next time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE orders
SET next_check_at = $3,
    check_fail_count = CASE WHEN $2 THEN check_fail_count + 1 ELSE 0 END
WHERE id = $1
`, id, failed, next.UTC())
	return errors.Wrap(err, "record check")
}

// ListTrackableOrderIDs returns shipped, non-terminal orders that are due,
// never polled first, then the ones waiting longest.
func (s *Storage) ListTrackableOrderIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT id FROM orders
WHERE carrier_shipment_id IS NOT NULL AND status NOT IN ('Delivered', 'Cancelled')
  AND (next_check_at IS NULL OR next_check_at <= now())
ORDER BY next_check_at NULLS FIRST, last_tracking_update NULLS FIRST, id
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select trackable orders")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "collect trackable orders")
	}
	return ids, nil
}

func (s *Storage) ListActive(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+orderColumns+` FROM orders
WHERE order_cancelled = FALSE
ORDER BY placed_at DESC, id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select active orders")
	}
	return collectOrders(rows)
}

func (s *Storage) ListCancelled(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+orderColumns+` FROM orders
WHERE status = 'Cancelled' AND order_cancelled = TRUE
ORDER BY updated_at DESC, id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select cancelled orders")
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()
	out := make([]*models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o      models.Order
		items  []byte
		addr   []byte
		status string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &items, &addr, &o.Amount, &o.PaymentMethod, &o.Payment,
		&status, &o.OrderCancelled,
		&o.CarrierOrderID, &o.CarrierShipmentID, &o.LastTrackingUpdate,
		&o.PlacedAt, &o.CreatedAt, &o.UpdatedAt,
		&o.NextCheckAt, &o.CheckFailCount,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan order")
	}
	o.Status = models.OrderStatus(status)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, errors.Wrap(err, "unmarshal items")
		}
	}
	if len(addr) > 0 {
		o.Address = &models.Address{}
		if err := json.Unmarshal(addr, o.Address); err != nil {
			return nil, errors.Wrap(err, "unmarshal address")
		}
	}
	return &o, nil
}

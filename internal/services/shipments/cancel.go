package shipments

import (
	"context"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CancelResult describes what happened on both sides of a cancellation.
// The local side always succeeded when it is returned.
type CancelResult struct {
	OrderID          string             `json:"orderId"`
	PreviousStatus   models.OrderStatus `json:"previousStatus"`
	Status           models.OrderStatus `json:"status"`
	CarrierCancelled bool               `json:"carrierCancelled"`
	CarrierError     string             `json:"carrierError,omitempty"`
}

// CancelShipment asks the carrier to cancel one of its orders.
func (s *Service) CancelShipment(ctx context.Context, carrierOrderID string) error {
	if carrierOrderID == "" {
		return errors.New("carrier order id is required")
	}
	return s.carrier.CancelOrders(ctx, []string{carrierOrderID})
}

// CancelOrder cancels the order on the customer's request. The carrier side
// is best effort: its failure is logged and reported in the result, and the
// order is cancelled locally anyway.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (CancelResult, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return CancelResult{}, err
	}
	if o.OrderCancelled {
		return CancelResult{}, ErrAlreadyCancelled
	}
	if o.Status == models.OrderStatusDelivered {
		return CancelResult{}, ErrDeliveredNotCancellable
	}

	log := s.log.With(zap.String("order_id", orderID))
	res := CancelResult{OrderID: orderID, PreviousStatus: o.Status, Status: models.OrderStatusCancelled}

	if o.CarrierOrderID != nil && *o.CarrierOrderID != "" {
		if err := s.CancelShipment(ctx, *o.CarrierOrderID); err != nil {
			// needs manual reconciliation: the carrier order is still active
			log.Error("carrier cancellation failed, order cancelled locally",
				zap.String("carrier_order_id", *o.CarrierOrderID), zap.Error(err))
			res.CarrierError = err.Error()
		} else {
			res.CarrierCancelled = true
		}
	}

	prev, err := s.repo.MarkCancelled(context.WithoutCancel(ctx), orderID)
	if err != nil {
		return CancelResult{}, errors.Wrap(err, "mark order cancelled")
	}
	res.PreviousStatus = prev
	log.Info("order cancelled", zap.Bool("carrier_cancelled", res.CarrierCancelled))

	if s.publisher != nil && prev != models.OrderStatusCancelled {
		msg := messages.NewOrderStatusChanged(orderID, prev, models.OrderStatusCancelled, messages.SourceCancellation, s.now())
		if err := s.publisher.PublishJSON(ctx, messages.TopicOrderStatusChanged, orderID, msg); err != nil {
			log.Warn("publish status change", zap.Error(err))
		}
	}
	return res, nil
}

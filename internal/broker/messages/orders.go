package messages

import (
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/google/uuid"
)

const (
	TopicOrderConfirmed     = "order.confirmed"
	TopicOrderStatusChanged = "order.status_changed"
)

// OrderConfirmed is emitted by the order flow once payment (or COD) is
// accepted. The shipment is created from the stored order, not from the
// message body.
type OrderConfirmed struct {
	OrderID     string    `json:"order_id"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
}

type StatusSource string

const (
	SourceTracking     StatusSource = "tracking"
	SourceCancellation StatusSource = "cancellation"
	SourceAdmin        StatusSource = "admin"
)

type OrderStatusChanged struct {
	EventID        string             `json:"event_id"`
	OrderID        string             `json:"order_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	Source         StatusSource       `json:"source"`
	ChangedAt      time.Time          `json:"changed_at"`
}

func NewOrderStatusChanged(orderID string, prev, next models.OrderStatus, src StatusSource, at time.Time) OrderStatusChanged {
	return OrderStatusChanged{
		EventID:        uuid.NewString(),
		OrderID:        orderID,
		Status:         next,
		PreviousStatus: prev,
		Source:         src,
		ChangedAt:      at.UTC(),
	}
}

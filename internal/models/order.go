package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStatus is the internal order status as shown to customers and admins.
type OrderStatus string

const (
	OrderStatusPlaced           OrderStatus = "Order Placed"
	OrderStatusProcessing       OrderStatus = "Processing"
	OrderStatusDispatched       OrderStatus = "Dispatched"
	OrderStatusInTransit        OrderStatus = "In Transit"
	OrderStatusOutForDelivery   OrderStatus = "Out for Delivery"
	OrderStatusDelivered        OrderStatus = "Delivered"
	OrderStatusCancelled        OrderStatus = "Cancelled"
	OrderStatusReturnedToOrigin OrderStatus = "Returned to Origin"
	OrderStatusLost             OrderStatus = "Lost"
	OrderStatusDamaged          OrderStatus = "Damaged"
)

var knownStatuses = map[OrderStatus]struct{}{
	OrderStatusPlaced:           {},
	OrderStatusProcessing:       {},
	OrderStatusDispatched:       {},
	OrderStatusInTransit:        {},
	OrderStatusOutForDelivery:   {},
	OrderStatusDelivered:        {},
	OrderStatusCancelled:        {},
	OrderStatusReturnedToOrigin: {},
	OrderStatusLost:             {},
	OrderStatusDamaged:          {},
}

// IsKnown reports whether s is one of the persisted enum values.
func (s OrderStatus) IsKnown() bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminal reports whether automated reconciliation must leave s alone.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type Address struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	HouseNo   string `json:"houseNo"`
	Street    string `json:"street"`
	Area      string `json:"area"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Country   string `json:"country"`
}

type OrderItem struct {
	ProductID string           `json:"productId"`
	SKU       string           `json:"sku,omitempty"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
	Quantity  int              `json:"quantity"`
	Size      string           `json:"size,omitempty"`
}

// Order is the persisted order document. Only the status and carrier fields
// are written by this service; the rest belongs to order placement.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Items         []OrderItem     `json:"items"`
	Address       *Address        `json:"address,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	Payment       bool            `json:"payment"`

	Status         OrderStatus `json:"status"`
	OrderCancelled bool        `json:"orderCancelled"`

	CarrierOrderID     *string    `json:"carrierOrderId,omitempty"`
	CarrierShipmentID  *string    `json:"carrierShipmentId,omitempty"`
	LastTrackingUpdate *time.Time `json:"lastTrackingUpdate,omitempty"`

	// Poll bookkeeping: when the order is due again and how many polls in a
	// row failed.
	NextCheckAt    *time.Time `json:"nextCheckAt,omitempty"`
	CheckFailCount int        `json:"checkFailCount,omitempty"`

	PlacedAt  time.Time `json:"placedAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasShipment reports whether the carrier shipment was already created.
func (o *Order) HasShipment() bool {
	return o.CarrierShipmentID != nil && *o.CarrierShipmentID != ""
}

// TrackingEvent is one normalized tracking record. It is never stored; only
// its status ends up on the order.
type TrackingEvent struct {
	Status    OrderStatus `json:"current_status"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"status_date"`
	Location  string      `json:"location,omitempty"`
}

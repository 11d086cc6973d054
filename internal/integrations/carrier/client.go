package carrier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PickupLocation struct {
	Name string
}

type OrderItem struct {
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Units        int             `json:"units"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

// CreateOrderRequest is the carrier order-creation payload.
type CreateOrderRequest struct {
	OrderID           string          `json:"order_id"`
	OrderDate         string          `json:"order_date"`
	PickupLocation    string          `json:"pickup_location"`
	BillingFirstName  string          `json:"billing_customer_name"`
	BillingLastName   string          `json:"billing_last_name"`
	BillingAddress    string          `json:"billing_address"`
	BillingCity       string          `json:"billing_city"`
	BillingPincode    string          `json:"billing_pincode"`
	BillingState      string          `json:"billing_state"`
	BillingCountry    string          `json:"billing_country"`
	BillingEmail      string          `json:"billing_email"`
	BillingPhone      string          `json:"billing_phone"`
	ShippingIsBilling int             `json:"shipping_is_billing"`
	Items             []OrderItem     `json:"order_items"`
	PaymentMethod     string          `json:"payment_method"`
	SubTotal          decimal.Decimal `json:"sub_total"`
	Length            float64         `json:"length"`
	Breadth           float64         `json:"breadth"`
	Height            float64         `json:"height"`
	Weight            float64         `json:"weight"`
}

// CreateOrderResult carries the ids assigned by the carrier. Message is set
// when the carrier answered with a business-level rejection instead.
type CreateOrderResult struct {
	OrderID    string
	ShipmentID string
	Message    string
}

// ScanEvent is a single entry of the carrier's scan history.
type ScanEvent struct {
	Status   RawStatus
	At       *time.Time
	Location string
}

// Tracking is the strict form of the carrier tracking payload. Found is false
// when the carrier returned no tracking data at all for the shipment.
type Tracking struct {
	Found          bool
	TrackStatus    RawStatus
	ShipmentStatus RawStatus
	Scans          []ScanEvent
	Error          string
	UpdatedAt      *time.Time
	City           string
}

type Client interface {
	PickupLocations(ctx context.Context) ([]PickupLocation, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	CancelOrders(ctx context.Context, carrierOrderIDs []string) error
	GetTracking(ctx context.Context, shipmentID string) (Tracking, error)
}

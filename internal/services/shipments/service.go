package shipments

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const orderDateLayout = "2006-01-02 15:04:05"

var wrongPickupRe = regexp.MustCompile(`(?i)wrong pickup location`)

type Repository interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	SetCarrierIDs(ctx context.Context, id, carrierOrderID, carrierShipmentID string) (bool, error)
	MarkCancelled(ctx context.Context, id string) (models.OrderStatus, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// Settings are the defaults the carrier needs but the order does not carry.
type Settings struct {
	DefaultCountry string
	// OrderDateZone is the carrier's local time; order_date is rendered in it.
	OrderDateZone  *time.Location
	OnlinePayments []string
	Length         float64
	Breadth        float64
	Height         float64
	Weight         float64
	LockTTL        time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DefaultCountry: "India",
		OrderDateZone:  time.FixedZone("IST", 5*3600+30*60),
		OnlinePayments: []string{"razorpay", "stripe", "online", "prepaid"},
		Length:         10,
		Breadth:        10,
		Height:         10,
		Weight:         1,
		LockTTL:        30 * time.Second,
	}
}

// ShipmentRef identifies the carrier shipment of an order.
type ShipmentRef struct {
	CarrierOrderID    string `json:"carrierOrderId"`
	CarrierShipmentID string `json:"carrierShipmentId"`
}

type Service struct {
	carrier   carrier.Client
	repo      Repository
	locker    cache.Locker
	publisher Publisher
	log       *zap.Logger
	validate  *validator.Validate
	settings  Settings
	now       func() time.Time
}

func New(c carrier.Client, repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		carrier:  c,
		repo:     repo,
		log:      log,
		validate: newValidator(),
		settings: DefaultSettings(),
		now:      time.Now,
	}
}

// WithSettings overrides the non-zero fields of st.
func (s *Service) WithSettings(st Settings) *Service {
	if st.DefaultCountry != "" {
		s.settings.DefaultCountry = st.DefaultCountry
	}
	if st.OrderDateZone != nil {
		s.settings.OrderDateZone = st.OrderDateZone
	}
	if len(st.OnlinePayments) > 0 {
		s.settings.OnlinePayments = st.OnlinePayments
	}
	if st.Length > 0 {
		s.settings.Length = st.Length
	}
	if st.Breadth > 0 {
		s.settings.Breadth = st.Breadth
	}
	if st.Height > 0 {
		s.settings.Height = st.Height
	}
	if st.Weight > 0 {
		s.settings.Weight = st.Weight
	}
	if st.LockTTL > 0 {
		s.settings.LockTTL = st.LockTTL
	}
	return s
}

// WithLocker guards creation across processes. Without it only the stored
// carrier ids make creation idempotent.
func (s *Service) WithLocker(l cache.Locker) *Service {
	s.locker = l
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// CreateShipmentByID loads the order and creates its shipment.
func (s *Service) CreateShipmentByID(ctx context.Context, orderID string) (ShipmentRef, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return ShipmentRef{}, err
	}
	return s.CreateShipment(ctx, o)
}

// CreateShipment registers the order with the carrier and stores the ids it
// returns. An order that already has a shipment is returned as is without
// calling the carrier.
func (s *Service) CreateShipment(ctx context.Context, o *models.Order) (ShipmentRef, error) {
	if o == nil {
		return ShipmentRef{}, errors.New("order is nil")
	}
	if ref, ok := existingRef(o); ok {
		return ref, nil
	}
	if o.OrderCancelled || o.Status == models.OrderStatusCancelled {
		return ShipmentRef{}, ErrOrderCancelled
	}

	req, err := s.buildRequest(o)
	if err != nil {
		return ShipmentRef{}, err
	}

	if s.locker != nil {
		key := lockKey(o.ID)
		token, ok, err := s.locker.TryLock(ctx, key, s.settings.LockTTL)
		if err != nil {
			return ShipmentRef{}, errors.Wrap(err, "lock shipment creation")
		}
		if !ok {
			return ShipmentRef{}, ErrCreationInProgress
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("unlock shipment creation", zap.String("order_id", o.ID), zap.Error(err))
			}
		}()

		// somebody may have finished between our read and the lock
		cur, err := s.repo.GetOrder(ctx, o.ID)
		if err != nil {
			return ShipmentRef{}, err
		}
		if ref, ok := existingRef(cur); ok {
			setRef(o, ref)
			return ref, nil
		}
	}

	pickup, err := s.pickupLocation(ctx)
	if err != nil {
		return ShipmentRef{}, err
	}
	req.PickupLocation = pickup

	res, err := s.carrier.CreateOrder(ctx, req)
	if err != nil {
		if carrier.IsUnavailable(err) {
			s.log.Error("carrier did not answer create order, reconcile manually",
				zap.String("order_id", o.ID), zap.Error(err))
			return ShipmentRef{}, &CreationOutcomeUnknownError{OrderID: o.ID, Err: err}
		}
		return ShipmentRef{}, err
	}
	if res.OrderID == "" || res.ShipmentID == "" {
		return ShipmentRef{}, s.rejection(ctx, pickup, res)
	}

	ref := ShipmentRef{CarrierOrderID: res.OrderID, CarrierShipmentID: res.ShipmentID}
	log := s.log.With(zap.String("order_id", o.ID), zap.String("carrier_order_id", ref.CarrierOrderID), zap.String("carrier_shipment_id", ref.CarrierShipmentID))

	applied, err := s.repo.SetCarrierIDs(ctx, o.ID, ref.CarrierOrderID, ref.CarrierShipmentID)
	if err != nil {
		// the carrier has the shipment but we could not record it
		log.Error("store carrier ids", zap.Error(err))
		return ref, errors.Wrap(err, "store carrier ids")
	}
	if !applied {
		cur, err := s.repo.GetOrder(ctx, o.ID)
		if err == nil {
			if stored, ok := existingRef(cur); ok {
				log.Warn("order already had a shipment, duplicate carrier order created",
					zap.String("stored_shipment_id", stored.CarrierShipmentID))
				setRef(o, stored)
				return stored, nil
			}
		}
		return ref, errors.Errorf("carrier ids for order %s were not stored", o.ID)
	}

	log.Info("shipment created")
	setRef(o, ref)
	return ref, nil
}

func (s *Service) rejection(ctx context.Context, sent string, res carrier.CreateOrderResult) error {
	msg := res.Message
	if msg == "" {
		msg = "carrier returned no order or shipment id"
	}
	if !wrongPickupRe.MatchString(msg) {
		return &carrier.BusinessError{StatusCode: 200, Message: msg}
	}
	// suggest the pickup the carrier currently has configured
	want := sent
	if locs, err := s.carrier.PickupLocations(ctx); err == nil && len(locs) > 0 {
		want = locs[0].Name
	}
	return &WrongPickupLocationError{Sent: sent, Pickup: want, Message: msg}
}

func (s *Service) pickupLocation(ctx context.Context) (string, error) {
	locs, err := s.carrier.PickupLocations(ctx)
	if err != nil {
		return "", err
	}
	if len(locs) == 0 {
		return "", ErrNoPickupLocation
	}
	return locs[0].Name, nil
}

func (s *Service) buildRequest(o *models.Order) (carrier.CreateOrderRequest, error) {
	addr, err := s.validateAddress(o.Address)
	if err != nil {
		return carrier.CreateOrderRequest{}, err
	}
	if len(o.Items) == 0 {
		return carrier.CreateOrderRequest{}, ErrNoItems
	}

	placed := o.PlacedAt
	if placed.IsZero() {
		placed = s.now()
	}

	return carrier.CreateOrderRequest{
		OrderID:           o.ID,
		OrderDate:         placed.In(s.settings.OrderDateZone).Format(orderDateLayout),
		BillingFirstName:  addr.FirstName,
		BillingLastName:   addr.LastName,
		BillingAddress:    addr.AddressLine,
		BillingCity:       addr.City,
		BillingPincode:    addr.Zipcode,
		BillingState:      addr.State,
		BillingCountry:    addr.Country,
		BillingEmail:      addr.Email,
		BillingPhone:      addr.Phone,
		ShippingIsBilling: 1,
		Items:             mapItems(o.Items),
		PaymentMethod:     s.paymentMethod(o.PaymentMethod),
		SubTotal:          o.Amount,
		Length:            s.settings.Length,
		Breadth:           s.settings.Breadth,
		Height:            s.settings.Height,
		Weight:            s.settings.Weight,
	}, nil
}

// mapItems tells the carrier what was actually charged: the discounted
// price wins over the list price.
func mapItems(items []models.OrderItem) []carrier.OrderItem {
	out := make([]carrier.OrderItem, 0, len(items))
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			name = "Item"
		}
		sku := strings.TrimSpace(it.SKU)
		if sku == "" {
			sku = strings.TrimSpace(it.ProductID)
		}
		if sku == "" {
			sku = "SKU-" + name
		}
		units := it.Quantity
		if units <= 0 {
			units = 1
		}
		price := it.Price
		if it.Discount != nil {
			price = *it.Discount
		}
		out = append(out, carrier.OrderItem{
			Name:         name,
			SKU:          sku,
			Units:        units,
			SellingPrice: price.Round(2),
		})
	}
	return out
}

func (s *Service) paymentMethod(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	for _, online := range s.settings.OnlinePayments {
		if m == strings.ToLower(online) {
			return "Prepaid"
		}
	}
	return "COD"
}

func existingRef(o *models.Order) (ShipmentRef, bool) {
	if o == nil || !o.HasShipment() {
		return ShipmentRef{}, false
	}
	ref := ShipmentRef{CarrierShipmentID: *o.CarrierShipmentID}
	if o.CarrierOrderID != nil {
		ref.CarrierOrderID = *o.CarrierOrderID
	}
	return ref, true
}

func setRef(o *models.Order, ref ShipmentRef) {
	oid, sid := ref.CarrierOrderID, ref.CarrierShipmentID
	o.CarrierOrderID = &oid
	o.CarrierShipmentID = &sid
}

func lockKey(orderID string) string {
	return fmt.Sprintf("shipment:create:%s", orderID)
}

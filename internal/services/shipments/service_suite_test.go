package shipments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	cachemocks "github.com/BearBump/ShipBox/internal/cache/mocks"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	carriermocks "github.com/BearBump/ShipBox/internal/integrations/carrier/mocks"
	"github.com/BearBump/ShipBox/internal/models"
	shipmentsmocks "github.com/BearBump/ShipBox/internal/services/shipments/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ServiceSuite struct {
	suite.Suite

	carrier *carriermocks.MockClient
	repo    *shipmentsmocks.MockRepository
	locker  *cachemocks.MockLocker
	pub     *shipmentsmocks.MockPublisher
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.carrier = &carriermocks.MockClient{}
	s.repo = &shipmentsmocks.MockRepository{}
	s.locker = &cachemocks.MockLocker{}
	s.pub = &shipmentsmocks.MockPublisher{}
	s.svc = New(s.carrier, s.repo, nil).WithPublisher(s.pub)
}

func validOrder() *models.Order {
	disc := decimal.RequireFromString("449.00")
	return &models.Order{
		ID:     "ord-1",
		Status: models.OrderStatusPlaced,
		Items: []models.OrderItem{
			{ProductID: "p-1", Name: "Kurta", Price: decimal.RequireFromString("499.00"), Discount: &disc, Quantity: 2},
			{ProductID: "p-2", Price: decimal.RequireFromString("100.00")},
		},
		Address: &models.Address{
			FirstName: "Asha", LastName: "Rao",
			HouseNo: "12B", Street: "MG Road", Area: "",
			City: "Pune", State: "Maharashtra", Zipcode: "411001",
			Phone: "9999999999", Email: "asha@example.com",
		},
		Amount:        decimal.RequireFromString("998.00"),
		PaymentMethod: "Razorpay",
		// 20:00 UTC is already the next day in IST
		PlacedAt: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC),
	}
}

func (s *ServiceSuite) TestCreateShipment_Success_MapsPayloadAndStoresIDs() {
	o := validOrder()
	s.carrier.On("PickupLocations", mock.Anything).
		Return([]carrier.PickupLocation{{Name: "Primary"}, {Name: "Backup"}}, nil).Once()
	s.carrier.On("CreateOrder", mock.Anything, mock.MatchedBy(func(r carrier.CreateOrderRequest) bool {
		return r.OrderID == "ord-1" &&
			r.PickupLocation == "Primary" &&
			r.OrderDate == "2025-03-02 01:30:00" &&
			r.BillingAddress == "12B, MG Road" &&
			r.BillingCountry == "India" &&
			r.PaymentMethod == "Prepaid" &&
			r.SubTotal.Equal(decimal.RequireFromString("998")) &&
			len(r.Items) == 2 &&
			r.Items[0].SellingPrice.Equal(decimal.RequireFromString("449")) &&
			r.Items[0].Units == 2 && r.Items[0].SKU == "p-1" &&
			r.Items[1].Name == "Item" && r.Items[1].Units == 1 &&
			r.Length == 10 && r.Weight == 1
	})).Return(carrier.CreateOrderResult{OrderID: "9001", ShipmentID: "7001"}, nil).Once()
	s.repo.On("SetCarrierIDs", mock.Anything, "ord-1", "9001", "7001").Return(true, nil).Once()

	ref, err := s.svc.CreateShipment(context.Background(), o)
	s.Require().NoError(err)
	s.Require().Equal(ShipmentRef{CarrierOrderID: "9001", CarrierShipmentID: "7001"}, ref)
	s.Require().Equal("7001", *o.CarrierShipmentID)
	s.Require().Equal(models.OrderStatusPlaced, o.Status)
	s.carrier.AssertExpectations(s.T())
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCreateShipment_Idempotent_NoCarrierCall() {
	o := validOrder()
	oid, sid := "9001", "7001"
	o.CarrierOrderID, o.CarrierShipmentID = &oid, &sid

	ref, err := s.svc.CreateShipment(context.Background(), o)
	s.Require().NoError(err)
	s.Require().Equal(ShipmentRef{CarrierOrderID: "9001", CarrierShipmentID: "7001"}, ref)
	s.carrier.AssertNotCalled(s.T(), "CreateOrder", mock.Anything, mock.Anything)
	s.carrier.AssertNotCalled(s.T(), "PickupLocations", mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_MissingPhone_NoCarrierCall() {
	o := validOrder()
	o.Address.Phone = "  "
	o.Address.City = ""

	_, err := s.svc.CreateShipment(context.Background(), o)
	var ia *IncompleteAddressError
	s.Require().ErrorAs(err, &ia)
	s.Require().Contains(ia.Missing, "phone")
	s.Require().Contains(ia.Missing, "city")
	s.Require().NotContains(ia.Missing, "country")
	s.Require().True(IsValidation(err))
	s.carrier.AssertNotCalled(s.T(), "CreateOrder", mock.Anything, mock.Anything)
	s.carrier.AssertNotCalled(s.T(), "PickupLocations", mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_NoAddress_AllFieldsMissing() {
	o := validOrder()
	o.Address = nil
	_, err := s.svc.CreateShipment(context.Background(), o)
	var ia *IncompleteAddressError
	s.Require().ErrorAs(err, &ia)
	s.Require().Len(ia.Missing, 9)
}

func (s *ServiceSuite) TestCreateShipment_NoItems() {
	o := validOrder()
	o.Items = nil
	_, err := s.svc.CreateShipment(context.Background(), o)
	s.Require().ErrorIs(err, ErrNoItems)
	s.carrier.AssertNotCalled(s.T(), "PickupLocations", mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_NoPickupLocation() {
	s.carrier.On("PickupLocations", mock.Anything).Return([]carrier.PickupLocation{}, nil).Once()
	_, err := s.svc.CreateShipment(context.Background(), validOrder())
	s.Require().ErrorIs(err, ErrNoPickupLocation)
	s.carrier.AssertNotCalled(s.T(), "CreateOrder", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_WrongPickupLocation() {
	s.carrier.On("PickupLocations", mock.Anything).
		Return([]carrier.PickupLocation{{Name: "Primary"}}, nil).Twice()
	s.carrier.On("CreateOrder", mock.Anything, mock.Anything).
		Return(carrier.CreateOrderResult{Message: "Wrong Pickup location entered. Please select from the list"}, nil).Once()

	_, err := s.svc.CreateShipment(context.Background(), validOrder())
	var wp *WrongPickupLocationError
	s.Require().ErrorAs(err, &wp)
	s.Require().Equal("Primary", wp.Pickup)
	s.Require().Contains(err.Error(), "Primary")
	s.repo.AssertNotCalled(s.T(), "SetCarrierIDs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_OtherMessage_IsBusinessError() {
	s.carrier.On("PickupLocations", mock.Anything).Return([]carrier.PickupLocation{{Name: "Primary"}}, nil).Once()
	s.carrier.On("CreateOrder", mock.Anything, mock.Anything).
		Return(carrier.CreateOrderResult{Message: "Invalid pincode"}, nil).Once()

	_, err := s.svc.CreateShipment(context.Background(), validOrder())
	s.Require().True(carrier.IsBusiness(err))
}

func (s *ServiceSuite) TestCreateShipment_CreateTimeout_OutcomeUnknown() {
	s.carrier.On("PickupLocations", mock.Anything).Return([]carrier.PickupLocation{{Name: "Primary"}}, nil).Once()
	s.carrier.On("CreateOrder", mock.Anything, mock.Anything).
		Return(carrier.CreateOrderResult{}, &carrier.UnavailableError{Op: "create order", Err: errors.New("timeout")}).Once()

	_, err := s.svc.CreateShipment(context.Background(), validOrder())
	var ou *CreationOutcomeUnknownError
	s.Require().ErrorAs(err, &ou)
	s.Require().Equal("ord-1", ou.OrderID)
	s.Require().True(IsOutcomeUnknown(err))
	s.Require().True(carrier.IsUnavailable(err))
	s.carrier.AssertNumberOfCalls(s.T(), "CreateOrder", 1)
	s.repo.AssertNotCalled(s.T(), "SetCarrierIDs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_PickupUnavailable_NotSubmitted() {
	s.carrier.On("PickupLocations", mock.Anything).
		Return(nil, &carrier.UnavailableError{Op: "pickup locations", Err: errors.New("http 503")}).Once()

	_, err := s.svc.CreateShipment(context.Background(), validOrder())
	s.Require().True(carrier.IsUnavailable(err))
	s.Require().False(IsOutcomeUnknown(err))
	s.carrier.AssertNotCalled(s.T(), "CreateOrder", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_CashOnDelivery() {
	o := validOrder()
	o.PaymentMethod = "COD"
	s.carrier.On("PickupLocations", mock.Anything).Return([]carrier.PickupLocation{{Name: "Primary"}}, nil).Once()
	s.carrier.On("CreateOrder", mock.Anything, mock.MatchedBy(func(r carrier.CreateOrderRequest) bool {
		return r.PaymentMethod == "COD"
	})).Return(carrier.CreateOrderResult{OrderID: "1", ShipmentID: "2"}, nil).Once()
	s.repo.On("SetCarrierIDs", mock.Anything, "ord-1", "1", "2").Return(true, nil).Once()

	_, err := s.svc.CreateShipment(context.Background(), o)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCreateShipment_LockBusy() {
	svc := New(s.carrier, s.repo, nil).WithLocker(s.locker)
	s.locker.On("TryLock", mock.Anything, "shipment:create:ord-1", 30*time.Second).Return("", false, nil).Once()

	_, err := svc.CreateShipment(context.Background(), validOrder())
	s.Require().ErrorIs(err, ErrCreationInProgress)
	s.carrier.AssertNotCalled(s.T(), "PickupLocations", mock.Anything)
}

func (s *ServiceSuite) TestCreateShipment_LockedReRead_FindsExistingShipment() {
	svc := New(s.carrier, s.repo, nil).WithLocker(s.locker)
	stored := validOrder()
	oid, sid := "9001", "7001"
	stored.CarrierOrderID, stored.CarrierShipmentID = &oid, &sid

	s.locker.On("TryLock", mock.Anything, "shipment:create:ord-1", 30*time.Second).Return("tok", true, nil).Once()
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(stored, nil).Once()
	s.locker.On("Unlock", mock.Anything, "shipment:create:ord-1", "tok").Return(nil).Once()

	stale := validOrder()
	ref, err := svc.CreateShipment(context.Background(), stale)
	s.Require().NoError(err)
	s.Require().Equal("7001", ref.CarrierShipmentID)
	s.Require().Equal("7001", *stale.CarrierShipmentID)
	s.carrier.AssertNotCalled(s.T(), "CreateOrder", mock.Anything, mock.Anything)
	s.locker.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCreateShipment_ConcurrentWinnerStored() {
	s.carrier.On("PickupLocations", mock.Anything).Return([]carrier.PickupLocation{{Name: "Primary"}}, nil).Once()
	s.carrier.On("CreateOrder", mock.Anything, mock.Anything).
		Return(carrier.CreateOrderResult{OrderID: "9002", ShipmentID: "7002"}, nil).Once()
	s.repo.On("SetCarrierIDs", mock.Anything, "ord-1", "9002", "7002").Return(false, nil).Once()
	stored := validOrder()
	oid, sid := "9001", "7001"
	stored.CarrierOrderID, stored.CarrierShipmentID = &oid, &sid
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(stored, nil).Once()

	ref, err := s.svc.CreateShipment(context.Background(), validOrder())
	s.Require().NoError(err)
	s.Require().Equal("7001", ref.CarrierShipmentID)
}

func (s *ServiceSuite) TestCreateShipment_CancelledOrderRefused() {
	o := validOrder()
	o.OrderCancelled = true
	o.Status = models.OrderStatusCancelled
	_, err := s.svc.CreateShipment(context.Background(), o)
	s.Require().ErrorIs(err, ErrOrderCancelled)
}

func (s *ServiceSuite) TestCreateShipmentByID_NotFound() {
	s.repo.On("GetOrder", mock.Anything, "nope").Return(nil, models.ErrOrderNotFound).Once()
	_, err := s.svc.CreateShipmentByID(context.Background(), "nope")
	s.Require().ErrorIs(err, ErrOrderNotFound)
}

func (s *ServiceSuite) TestCancelShipment_ReturnsCarrierError() {
	want := errors.New("carrier down")
	s.carrier.On("CancelOrders", mock.Anything, []string{"9001"}).Return(want).Once()
	s.Require().ErrorIs(s.svc.CancelShipment(context.Background(), "9001"), want)
	s.Require().Error(s.svc.CancelShipment(context.Background(), ""))
}

func (s *ServiceSuite) TestCancelOrder_CarrierFails_LocalStillCancelled() {
	o := validOrder()
	oid, sid := "9001", "7001"
	o.CarrierOrderID, o.CarrierShipmentID = &oid, &sid
	o.Status = models.OrderStatusInTransit

	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(o, nil).Once()
	s.carrier.On("CancelOrders", mock.Anything, []string{"9001"}).
		Return(&carrier.UnavailableError{Op: "cancel orders", Err: errors.New("502")}).Once()
	s.repo.On("MarkCancelled", mock.Anything, "ord-1").Return(models.OrderStatusInTransit, nil).Once()
	s.pub.On("PublishJSON", mock.Anything, messages.TopicOrderStatusChanged, "ord-1", mock.MatchedBy(func(m messages.OrderStatusChanged) bool {
		return m.Status == models.OrderStatusCancelled && m.Source == messages.SourceCancellation
	})).Return(nil).Once()

	res, err := s.svc.CancelOrder(context.Background(), "ord-1")
	s.Require().NoError(err)
	s.Require().False(res.CarrierCancelled)
	s.Require().Contains(res.CarrierError, "carrier unavailable")
	s.Require().Equal(models.OrderStatusCancelled, res.Status)
	s.Require().Equal(models.OrderStatusInTransit, res.PreviousStatus)
	s.repo.AssertExpectations(s.T())
	s.pub.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCancelOrder_NoShipment_NoCarrierCall() {
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(validOrder(), nil).Once()
	s.repo.On("MarkCancelled", mock.Anything, "ord-1").Return(models.OrderStatusPlaced, nil).Once()
	s.pub.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	res, err := s.svc.CancelOrder(context.Background(), "ord-1")
	s.Require().NoError(err)
	s.Require().Empty(res.CarrierError)
	s.carrier.AssertNotCalled(s.T(), "CancelOrders", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCancelOrder_Refusals() {
	cancelled := validOrder()
	cancelled.OrderCancelled = true
	delivered := validOrder()
	delivered.ID = "ord-2"
	delivered.Status = models.OrderStatusDelivered

	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(cancelled, nil).Once()
	s.repo.On("GetOrder", mock.Anything, "ord-2").Return(delivered, nil).Once()
	s.repo.On("GetOrder", mock.Anything, "ord-3").Return(nil, models.ErrOrderNotFound).Once()

	_, err := s.svc.CancelOrder(context.Background(), "ord-1")
	s.Require().ErrorIs(err, ErrAlreadyCancelled)
	_, err = s.svc.CancelOrder(context.Background(), "ord-2")
	s.Require().ErrorIs(err, ErrDeliveredNotCancellable)
	_, err = s.svc.CancelOrder(context.Background(), "ord-3")
	s.Require().ErrorIs(err, ErrOrderNotFound)
	s.repo.AssertNotCalled(s.T(), "MarkCancelled", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCancelOrder_StoreFailureIsReturned() {
	s.repo.On("GetOrder", mock.Anything, "ord-1").Return(validOrder(), nil).Once()
	s.repo.On("MarkCancelled", mock.Anything, "ord-1").Return(models.OrderStatus(""), errors.New("db down")).Once()

	_, err := s.svc.CancelOrder(context.Background(), "ord-1")
	s.Require().Error(err)
	s.Require().Contains(err.Error(), "mark order cancelled")
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

package orders_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/orders"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Shipments interface {
	CreateShipmentByID(ctx context.Context, orderID string) (shipments.ShipmentRef, error)
	CancelOrder(ctx context.Context, orderID string) (shipments.CancelResult, error)
}

type Tracking interface {
	TrackOne(ctx context.Context, shipmentID string) []models.TrackingEvent
	TrackMany(ctx context.Context, orderIDs []string) map[string][]models.TrackingEvent
}

type Orders interface {
	ListActive(ctx context.Context, limit, offset int) ([]*models.Order, error)
	ListCancelled(ctx context.Context, limit, offset int) ([]*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
}

type OrdersAPI struct {
	shipments Shipments
	tracking  Tracking
	orders    Orders
	log       *zap.Logger
}

func New(sh Shipments, tr Tracking, or Orders, log *zap.Logger) *OrdersAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrdersAPI{shipments: sh, tracking: tr, orders: or, log: log}
}

// Register mounts the /v1 routes on r.
func (a *OrdersAPI) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/orders", a.listActive)
		r.Get("/orders/cancelled", a.listCancelled)
		r.Post("/orders/tracking", a.trackMany)
		r.Get("/orders/{id}", a.getOrder)
		r.Post("/orders/{id}/shipment", a.createShipment)
		r.Post("/orders/{id}/cancel", a.cancelOrder)
		r.Post("/orders/{id}/status", a.updateStatus)
		r.Get("/shipments/{shipmentId}/tracking", a.trackOne)
	})
}

type shipmentResponse struct {
	OrderID           string `json:"order_id"`
	CarrierOrderID    string `json:"carrier_order_id"`
	CarrierShipmentID string `json:"carrier_shipment_id"`
}

func (a *OrdersAPI) createShipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := a.shipments.CreateShipmentByID(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shipmentResponse{
		OrderID:           id,
		CarrierOrderID:    ref.CarrierOrderID,
		CarrierShipmentID: ref.CarrierShipmentID,
	})
}

type cancelResponse struct {
	OrderID          string             `json:"order_id"`
	Status           models.OrderStatus `json:"status"`
	PreviousStatus   models.OrderStatus `json:"previous_status"`
	CarrierCancelled bool               `json:"carrier_cancelled"`
	CarrierError     string             `json:"carrier_error,omitempty"`
}

func (a *OrdersAPI) cancelOrder(w http.ResponseWriter, r *http.Request) {
	res, err := a.shipments.CancelOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		OrderID:          res.OrderID,
		Status:           res.Status,
		PreviousStatus:   res.PreviousStatus,
		CarrierCancelled: res.CarrierCancelled,
		CarrierError:     res.CarrierError,
	})
}

// trackOne never fails: carrier problems come back as the "tracking
// unavailable" event.
func (a *OrdersAPI) trackOne(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.tracking.TrackOne(r.Context(), chi.URLParam(r, "shipmentId")))
}

type trackManyRequest struct {
	OrderIDs []string `json:"order_ids"`
}

func (a *OrdersAPI) trackMany(w http.ResponseWriter, r *http.Request) {
	var in trackManyRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	writeJSON(w, http.StatusOK, a.tracking.TrackMany(r.Context(), in.OrderIDs))
}

func (a *OrdersAPI) listActive(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	out, err := a.orders.ListActive(r.Context(), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *OrdersAPI) listCancelled(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	out, err := a.orders.ListCancelled(r.Context(), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (a *OrdersAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	o, err := a.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), in.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	var err error
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return 0, 0, false
		}
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "offset must be an integer"})
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func nonNil(in []*models.Order) []*models.Order {
	if in == nil {
		return []*models.Order{}
	}
	return in
}

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
	Pickup  string   `json:"pickup_location,omitempty"`
}

// statusOf maps domain errors to HTTP codes.
func statusOf(err error) int {
	var (
		ia *shipments.IncompleteAddressError
		wp *shipments.WrongPickupLocationError
	)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.As(err, &ia), errors.As(err, &wp),
		errors.Is(err, shipments.ErrNoItems),
		errors.Is(err, shipments.ErrNoPickupLocation),
		errors.Is(err, orders.ErrUnknownStatus),
		carrier.IsBusiness(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shipments.ErrCreationInProgress),
		errors.Is(err, shipments.ErrOrderCancelled),
		errors.Is(err, shipments.ErrAlreadyCancelled),
		errors.Is(err, shipments.ErrDeliveredNotCancellable):
		return http.StatusConflict
	case carrier.IsUnavailable(err), carrier.IsAuth(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *OrdersAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	body := errorResponse{Error: err.Error()}

	var (
		ia *shipments.IncompleteAddressError
		wp *shipments.WrongPickupLocationError
	)
	if errors.As(err, &ia) {
		body.Missing = ia.Missing
	}
	if errors.As(err, &wp) {
		body.Pickup = wp.Pickup
	}
	if code == http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

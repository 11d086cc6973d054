package tracking

import (
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
)

const (
	MsgUnavailable     = "tracking unavailable"
	MsgAwaitingScan    = "awaiting first scan"
	MsgAwaitingPickup  = "Shipment created, awaiting pickup"
	MsgLatestStatus    = "Latest status from carrier"
	MsgNotFound        = "shipment not found in tracking system"
	MsgBeingUpdated    = "tracking information is being updated"
	noActivitiesMarker = "no activities found"
)

var codeStatuses = map[int]models.OrderStatus{
	0:  models.OrderStatusPlaced,
	1:  models.OrderStatusProcessing,
	2:  models.OrderStatusProcessing,
	3:  models.OrderStatusDispatched,
	4:  models.OrderStatusInTransit,
	5:  models.OrderStatusOutForDelivery,
	6:  models.OrderStatusDelivered,
	7:  models.OrderStatusCancelled,
	8:  models.OrderStatusReturnedToOrigin,
	9:  models.OrderStatusLost,
	10: models.OrderStatusDamaged,
	11: models.OrderStatusProcessing,
	12: models.OrderStatusProcessing,
}

// keys are lowercased with "_" and "-" replaced by spaces
var textStatuses = map[string]models.OrderStatus{
	"new":                models.OrderStatusPlaced,
	"new order":          models.OrderStatusPlaced,
	"order confirmed":    models.OrderStatusPlaced,
	"order placed":       models.OrderStatusPlaced,
	noActivitiesMarker:   models.OrderStatusPlaced,
	"processing":         models.OrderStatusProcessing,
	"manifest generated": models.OrderStatusProcessing,
	"no tracking data":   models.OrderStatusProcessing,
	"dispatched":         models.OrderStatusDispatched,
	"in transit":         models.OrderStatusInTransit,
	"out for delivery":   models.OrderStatusOutForDelivery,
	"delivered":          models.OrderStatusDelivered,
	"cancelled":          models.OrderStatusCancelled,
	"canceled":           models.OrderStatusCancelled,
	"returned to origin": models.OrderStatusReturnedToOrigin,
	"rto":                models.OrderStatusReturnedToOrigin,
	"lost":               models.OrderStatusLost,
	"damaged":            models.OrderStatusDamaged,
}

// Normalize maps any carrier status to the internal vocabulary. It never
// fails: an unknown code comes back as its decimal string and an unknown
// text comes back unchanged, so callers must check IsKnown before storing.
func Normalize(raw carrier.RawStatus) models.OrderStatus {
	if raw.Code != nil {
		return fromCode(*raw.Code)
	}
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return models.OrderStatusPlaced
	}
	if n, err := strconv.Atoi(text); err == nil {
		return fromCode(n)
	}
	if st, ok := textStatuses[textKey(text)]; ok {
		return st
	}
	return models.OrderStatus(raw.Text)
}

func fromCode(c int) models.OrderStatus {
	if st, ok := codeStatuses[c]; ok {
		return st
	}
	return models.OrderStatus(strconv.Itoa(c))
}

func textKey(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTracking turns one decoded tracking record into events. The
// carrier's summary status wins over the scan history when it has one.
func NormalizeTracking(t carrier.Tracking, now time.Time) []models.TrackingEvent {
	now = now.UTC()
	if !t.Found {
		return []models.TrackingEvent{{Status: models.OrderStatusProcessing, Message: MsgNotFound, Timestamp: now}}
	}

	if !t.ShipmentStatus.IsEmpty() && !t.ShipmentStatus.IsZeroCode() {
		return []models.TrackingEvent{{
			Status:    Normalize(t.ShipmentStatus),
			Message:   MsgLatestStatus,
			Timestamp: timeOr(t.UpdatedAt, now),
			Location:  t.City,
		}}
	}

	if strings.Contains(strings.ToLower(t.Error), noActivitiesMarker) {
		return []models.TrackingEvent{{Status: models.OrderStatusPlaced, Message: MsgAwaitingScan, Timestamp: now}}
	}

	if t.TrackStatus.IsZeroCode() {
		return []models.TrackingEvent{{Status: models.OrderStatusPlaced, Message: MsgAwaitingPickup, Timestamp: now}}
	}

	events := make([]models.TrackingEvent, 0, len(t.Scans))
	for _, sc := range t.Scans {
		if sc.Status.IsEmpty() {
			continue
		}
		events = append(events, models.TrackingEvent{
			Status:    Normalize(sc.Status),
			Message:   sc.Status.String(),
			Timestamp: timeOr(sc.At, now),
			Location:  sc.Location,
		})
	}
	if len(events) > 0 {
		return events
	}

	if !t.ShipmentStatus.IsEmpty() {
		return []models.TrackingEvent{{Status: Normalize(t.ShipmentStatus), Timestamp: timeOr(t.UpdatedAt, now)}}
	}

	return []models.TrackingEvent{{Status: models.OrderStatusProcessing, Message: MsgBeingUpdated, Timestamp: now}}
}

// Unavailable is returned instead of an error whenever tracking could not
// be fetched.
func Unavailable(now time.Time) []models.TrackingEvent {
	return []models.TrackingEvent{{Status: models.OrderStatusProcessing, Message: MsgUnavailable, Timestamp: now.UTC()}}
}

// Latest picks the event with the newest timestamp; ties keep the earlier
// position.
func Latest(events []models.TrackingEvent) (models.TrackingEvent, bool) {
	if len(events) == 0 {
		return models.TrackingEvent{}, false
	}
	best := events[0]
	for _, e := range events[1:] {
		if e.Timestamp.After(best.Timestamp) {
			best = e
		}
	}
	return best, true
}

// IsUnavailable reports whether events is the sentinel produced by
// Unavailable.
func IsUnavailable(events []models.TrackingEvent) bool {
	return len(events) == 1 && events[0].Status == models.OrderStatusProcessing && events[0].Message == MsgUnavailable
}

func timeOr(t *time.Time, def time.Time) time.Time {
	if t == nil || t.IsZero() {
		return def
	}
	return t.UTC()
}

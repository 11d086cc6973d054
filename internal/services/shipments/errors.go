package shipments

import (
	"fmt"
	"strings"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound           = models.ErrOrderNotFound
	ErrNoItems                 = errors.New("order has no items to ship")
	ErrNoPickupLocation        = errors.New("no pickup locations configured with the carrier")
	ErrCreationInProgress      = errors.New("shipment creation for this order is already in progress")
	ErrOrderCancelled          = errors.New("order is cancelled")
	ErrAlreadyCancelled        = errors.New("order is already cancelled")
	ErrDeliveredNotCancellable = errors.New("delivered order cannot be cancelled")
)

// IncompleteAddressError lists the address fields that are blank.
type IncompleteAddressError struct {
	Missing []string
}

func (e *IncompleteAddressError) Error() string {
	return fmt.Sprintf("incomplete address: missing %s", strings.Join(e.Missing, ", "))
}

// WrongPickupLocationError is the carrier refusing the pickup we sent.
// Pickup is the location the carrier currently has configured.
type WrongPickupLocationError struct {
	Sent    string
	Pickup  string
	Message string
}

func (e *WrongPickupLocationError) Error() string {
	return fmt.Sprintf("wrong pickup location %q, try %q: %s", e.Sent, e.Pickup, e.Message)
}

// CreationOutcomeUnknownError means CreateOrder was sent and no answer came
// back. The carrier may already hold the order and has no idempotency key,
// so creation must not be repeated automatically.
type CreationOutcomeUnknownError struct {
	OrderID string
	Err     error
}

func (e *CreationOutcomeUnknownError) Error() string {
	return fmt.Sprintf("shipment creation outcome unknown for order %s: %v", e.OrderID, e.Err)
}

func (e *CreationOutcomeUnknownError) Unwrap() error { return e.Err }

func IsOutcomeUnknown(err error) bool {
	var ou *CreationOutcomeUnknownError
	return errors.As(err, &ou)
}

// IsValidation reports errors caused by the order itself rather than by the
// carrier or the infrastructure.
func IsValidation(err error) bool {
	var ia *IncompleteAddressError
	return errors.As(err, &ia) || errors.Is(err, ErrNoItems)
}

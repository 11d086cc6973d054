package carrier

import (
	"fmt"

	"github.com/pkg/errors"
)

// AuthError means the carrier rejected our credentials or token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("carrier auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// BusinessError is a domain-level rejection, possibly returned with a 2xx
// transport status.
type BusinessError struct {
	StatusCode int
	Message    string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("carrier rejected request (http %d): %s", e.StatusCode, e.Message)
}

// UnavailableError covers timeouts, network failures and 5xx answers.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("carrier unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

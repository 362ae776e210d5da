package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrResourceOccupied     = errors.New("resource occupied")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoDestination        = errors.New("owner has no payout destination")
	ErrGatewayTimeout       = errors.New("payment gateway timeout")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrDuplicateRequest     = errors.New("duplicate booking request")
)

// ErrorCode is the machine-readable reason surfaced to API callers.
type ErrorCode string

const (
	CodeInvalidWindow        ErrorCode = "INVALID_WINDOW"
	CodeInvalidPaymentMethod ErrorCode = "INVALID_PAYMENT_METHOD"
	CodeResourceOccupied     ErrorCode = "RESOURCE_OCCUPIED"
	CodePaymentPending       ErrorCode = "PAYMENT_PENDING"
	CodePaymentFailed        ErrorCode = "PAYMENT_FAILED"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeWindowEnded          ErrorCode = "WINDOW_ENDED"
)

// BookingError is returned synchronously from the booking path.
// Reservation is set when a record exists despite the error (PAYMENT_PENDING).
type BookingError struct {
	Code        ErrorCode
	Message     string
	Reservation *Reservation
	Err         error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// NewBookingError builds a BookingError with an optional cause.
func NewBookingError(code ErrorCode, message string, cause error) *BookingError {
	return &BookingError{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the booking error code, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Code
	}
	if errors.Is(err, ErrNotFound) {
		return CodeNotFound
	}
	return ""
}

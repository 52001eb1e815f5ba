package lifecycle

import (
	"errors"
	"fmt"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/storage"
)

// BookingError is returned when a booking is rejected. The predefined values
// below are compared with errors.Is.
type BookingError struct {
	Reason string
}

func (e *BookingError) Error() string { return "booking rejected: " + e.Reason }

var (
	ErrNoProvider       = &BookingError{Reason: "no provider selected"}
	ErrInvalidProvider  = &BookingError{Reason: "provider details are invalid"}
	ErrNoLocation       = &BookingError{Reason: "no service location"}
	ErrAlreadyActive    = &BookingError{Reason: "customer already has an active request"}
	ErrUnknownCategory  = &BookingError{Reason: "unknown service category"}
	ErrNoCustomer       = &BookingError{Reason: "missing customer id"}
	ErrBadPaymentMethod = &BookingError{Reason: "unsupported payment method"}
)

var ErrInvalidTransition = errors.New("invalid status transition")

type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

var (
	ErrNotFound      = storage.ErrNotFound
	ErrAlreadyTipped = errors.New("request already tipped")
	ErrAlreadyRated  = errors.New("request already rated")
	ErrNotCompleted  = errors.New("request is not completed")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrInvalidTip    = errors.New("invalid tip amount")
)

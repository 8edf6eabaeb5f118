package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Reservation and settlement errors. Callers match with errors.Is.
var (
	ErrScheduleUnavailable    = errors.New("schedule unavailable")
	ErrSeatConflict           = errors.New("seat already reserved")
	ErrInvalidSeatRange       = errors.New("seat outside class range")
	ErrInvalidBooking         = errors.New("invalid booking")
	ErrAlreadyConfirmed       = errors.New("booking already confirmed")
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientPoints     = errors.New("insufficient loyalty points")
	ErrDiscountInvalid        = errors.New("discount not applicable")
	ErrDiscountNotFound       = errors.New("discount not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrNotBookingOwner        = errors.New("booking belongs to another user")
	ErrCancellationNotAllowed = errors.New("cancellation not allowed by policy")
	ErrPolicyNotFound         = errors.New("cancellation policy not found")
	ErrChargeDeclined         = errors.New("charge declined")
	ErrChargeTimeout          = errors.New("charge timed out")
	ErrPaymentMethodNotFound  = errors.New("payment method not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUserNotFound           = errors.New("user not found")
	ErrRateLimited            = errors.New("rate limit exceeded")
)

// SeatConflictError lists the seats that were already held by another active booking
type SeatConflictError struct {
	Seats []int
}

func (e *SeatConflictError) Error() string {
	seats := append([]int(nil), e.Seats...)
	sort.Ints(seats)
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return fmt.Sprintf("%s: %s", ErrSeatConflict, strings.Join(parts, ","))
}

func (e *SeatConflictError) Unwrap() error {
	return ErrSeatConflict
}

// InvalidSeatRangeError reports a seat that does not belong to the requested class
type InvalidSeatRangeError struct {
	Seat      int
	ClassCode string
	FirstSeat int
	LastSeat  int
}

func (e *InvalidSeatRangeError) Error() string {
	if e.LastSeat == 0 {
		return fmt.Sprintf("%s: seat %d, unknown class %q", ErrInvalidSeatRange, e.Seat, e.ClassCode)
	}
	return fmt.Sprintf("%s: seat %d not in class %s (%d-%d)",
		ErrInvalidSeatRange, e.Seat, e.ClassCode, e.FirstSeat, e.LastSeat)
}

func (e *InvalidSeatRangeError) Unwrap() error {
	return ErrInvalidSeatRange
}

// ValidationError wraps ErrValidation with a field-level message
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError is a shorthand for &ValidationError{...}
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

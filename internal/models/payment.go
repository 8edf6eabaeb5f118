package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PaymentMethodType identifies the settlement channel
type PaymentMethodType string

const (
	PaymentMethodCard         PaymentMethodType = "CARD"
	PaymentMethodWallet       PaymentMethodType = "WALLET" // Loyalty points
	PaymentMethodBankTransfer PaymentMethodType = "BANK_TRANSFER"
)

// IsValid reports whether t is a known method type
func (t PaymentMethodType) IsValid() bool {
	switch t {
	case PaymentMethodCard, PaymentMethodWallet, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// PaymentStatus is the status of a settlement record
type PaymentStatus string

const (
	PaymentStatusSuccess       PaymentStatus = "SUCCESS"
	PaymentStatusRefundPending PaymentStatus = "REFUND_PENDING" // Refund amount recorded, execution is external
)

// PaymentMethod is a saved method belonging to a user. Details is opaque
// to everything except the matching payment adapter.
type PaymentMethod struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	UserID    uuid.UUID         `json:"user_id" db:"user_id"`
	Type      PaymentMethodType `json:"type" db:"type"`
	Details   string            `json:"-" db:"details"`
	Label     string            `json:"label" db:"label"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Payment is an append-only settlement record
type Payment struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	BookingID  uuid.UUID         `json:"booking_id" db:"booking_id"`
	Amount     float64           `json:"amount" db:"amount"`
	MethodID   *uuid.UUID        `json:"method_id,omitempty" db:"method_id"`
	MethodType PaymentMethodType `json:"method_type" db:"method_type"`
	Status     PaymentStatus     `json:"status" db:"status"`
	Reference  *string           `json:"reference,omitempty" db:"reference"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// ============================================================================
// REQUEST STRUCTS
// ============================================================================

// ProcessPaymentRequest settles a PENDING booking
type ProcessPaymentRequest struct {
	BookingID    uuid.UUID         `json:"-"`
	UserID       uuid.UUID         `json:"-"`
	Amount       *float64          `json:"amount,omitempty"` // Defaults to the booking total
	Method       PaymentMethodType `json:"method"`
	MethodID     *uuid.UUID        `json:"method_id,omitempty"` // Saved method instead of raw details
	Details      string            `json:"details,omitempty"`
	DiscountCode *string           `json:"discount_code,omitempty"`
}

// Validate validates the request shape; detail formats are checked by the adapter
func (r *ProcessPaymentRequest) Validate() error {
	if r.BookingID == uuid.Nil {
		return errors.New("booking_id is required")
	}
	if r.MethodID == nil && !r.Method.IsValid() {
		return errors.New("method must be CARD, WALLET or BANK_TRANSFER")
	}
	if r.Amount != nil && *r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// SavePaymentMethodRequest stores a payment method for later use
type SavePaymentMethodRequest struct {
	UserID  uuid.UUID         `json:"-"`
	Type    PaymentMethodType `json:"type" binding:"required"`
	Details string            `json:"details" binding:"required"`
	Label   string            `json:"label"`
}

package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiscountType identifies where a discount code came from
type DiscountType string

const (
	DiscountTypePromo        DiscountType = "PROMO"
	DiscountTypeVoucher      DiscountType = "VOUCHER"
	DiscountTypeDiscountCode DiscountType = "DISCOUNT_CODE"
)

// Discount is a percentage or fixed-amount reduction bounded by a
// validity window and an optional usage cap (MaxUses 0 = unlimited)
type Discount struct {
	Code        string       `json:"code" db:"code"`
	Type        DiscountType `json:"type" db:"type"`
	Percentage  float64      `json:"percentage" db:"percentage"`
	FixedAmount float64      `json:"fixed_amount" db:"fixed_amount"`
	ScheduleID  *uuid.UUID   `json:"schedule_id,omitempty" db:"schedule_id"` // nil = any schedule
	ValidFrom   time.Time    `json:"valid_from" db:"valid_from"`
	ValidTo     time.Time    `json:"valid_to" db:"valid_to"`
	Active      bool         `json:"active" db:"active"`
	MaxUses     int          `json:"max_uses" db:"max_uses"`
	CurrentUses int          `json:"current_uses" db:"current_uses"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// IsExhausted reports whether a capped discount has no uses left
func (d *Discount) IsExhausted() bool {
	return d.MaxUses > 0 && d.CurrentUses >= d.MaxUses
}

// Evaluate returns the reduction on amount for scheduleID at now. An
// inapplicable code yields an error wrapping ErrDiscountInvalid.
func (d *Discount) Evaluate(amount float64, scheduleID uuid.UUID, now time.Time) (float64, error) {
	switch {
	case !d.Active:
		return 0, fmt.Errorf("%w: code %s is inactive", ErrDiscountInvalid, d.Code)
	case now.Before(d.ValidFrom) || now.After(d.ValidTo):
		return 0, fmt.Errorf("%w: code %s is outside its validity window", ErrDiscountInvalid, d.Code)
	case d.IsExhausted():
		return 0, fmt.Errorf("%w: code %s has no uses left", ErrDiscountInvalid, d.Code)
	case d.ScheduleID != nil && *d.ScheduleID != scheduleID:
		return 0, fmt.Errorf("%w: code %s is for another schedule", ErrDiscountInvalid, d.Code)
	}
	if amount <= 0 {
		return 0, nil
	}

	var discount float64
	if d.Percentage > 0 {
		discount = amount * d.Percentage / 100
	} else {
		discount = math.Min(d.FixedAmount, amount)
	}
	return RoundMoney(math.Min(discount, amount)), nil
}

// Validate validates a discount before it is stored
func (d *Discount) Validate() error {
	if strings.TrimSpace(d.Code) == "" {
		return NewValidationError("code", "is required")
	}
	switch d.Type {
	case DiscountTypePromo, DiscountTypeVoucher, DiscountTypeDiscountCode:
	default:
		return NewValidationError("type", "must be PROMO, VOUCHER or DISCOUNT_CODE")
	}
	if d.Percentage < 0 || d.Percentage > 100 {
		return NewValidationError("percentage", "must be between 0 and 100")
	}
	if d.FixedAmount < 0 {
		return NewValidationError("fixed_amount", "must not be negative")
	}
	if d.Percentage == 0 && d.FixedAmount == 0 {
		return NewValidationError("percentage", "either percentage or fixed_amount is required")
	}
	if !d.ValidTo.After(d.ValidFrom) {
		return NewValidationError("valid_to", "must be after valid_from")
	}
	if d.MaxUses < 0 {
		return NewValidationError("max_uses", "must not be negative")
	}
	return nil
}

// NormalizeDiscountCode upper-cases and trims a user supplied code
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountQuote is the preview shown before payment
type DiscountQuote struct {
	Code        string  `json:"code"`
	Amount      float64 `json:"amount"`
	Discount    float64 `json:"discount"`
	FinalAmount float64 `json:"final_amount"`
	Applicable  bool    `json:"applicable"`
	Reason      string  `json:"reason,omitempty"`
}

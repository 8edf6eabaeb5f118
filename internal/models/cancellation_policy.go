package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CancellationPolicy decides refund eligibility from the hours left
// before departure. Only one policy is active at a time.
type CancellationPolicy struct {
	ID                      uuid.UUID `json:"id" db:"id"`
	Name                    string    `json:"name" db:"name"`
	HoursBeforeDeparture    float64   `json:"hours_before_departure" db:"hours_before_departure"`         // latest allowed
	MinHoursBeforeDeparture float64   `json:"min_hours_before_departure" db:"min_hours_before_departure"` // earliest allowed
	RefundPercentage        float64   `json:"refund_percentage" db:"refund_percentage"`
	AllowCancellation       bool      `json:"allow_cancellation" db:"allow_cancellation"`
	Active                  bool      `json:"active" db:"active"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
}

// CanCancel reports whether a cancellation hoursUntilDeparture before
// departure falls inside the policy window
func (p *CancellationPolicy) CanCancel(hoursUntilDeparture float64) bool {
	return p.AllowCancellation &&
		hoursUntilDeparture >= p.MinHoursBeforeDeparture &&
		hoursUntilDeparture <= p.HoursBeforeDeparture
}

// Refund returns the refundable part of originalAmount
func (p *CancellationPolicy) Refund(originalAmount, hoursUntilDeparture float64) float64 {
	if !p.CanCancel(hoursUntilDeparture) {
		return 0
	}
	return originalAmount * p.RefundPercentage / 100
}

// Validate validates a policy before it is stored
func (p *CancellationPolicy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if p.MinHoursBeforeDeparture < 0 {
		return NewValidationError("min_hours_before_departure", "must not be negative")
	}
	if p.HoursBeforeDeparture < p.MinHoursBeforeDeparture {
		return NewValidationError("hours_before_departure", "must not be less than min_hours_before_departure")
	}
	if p.RefundPercentage < 0 || p.RefundPercentage > 100 {
		return NewValidationError("refund_percentage", "must be between 0 and 100")
	}
	return nil
}

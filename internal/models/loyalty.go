package models

import (
	"time"

	"github.com/google/uuid"
)

// LoyaltyBalance is a user's point balance
type LoyaltyBalance struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Points    int       `json:"points" db:"points"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

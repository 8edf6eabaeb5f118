package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditLogin                 = "login"
	AuditLoginFailed           = "login_failed"
	AuditSchedulePublished     = "schedule_published"
	AuditScheduleStatusUpdated = "schedule_status_updated"
	AuditDiscountCreated       = "discount_created"
	AuditDiscountDeactivated   = "discount_deactivated"
	AuditPolicyCreated         = "policy_created"
	AuditPolicyActivated       = "policy_activated"
	AuditBookingStaffCancelled = "booking_staff_cancelled"
	AuditExpirySweepTriggered  = "expiry_sweep_triggered"
)

// JSONMap is a JSONB column decoded into a map
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface
func (m *JSONMap) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	return json.Unmarshal(raw, m)
}

// AuditEvent is one entry of the staff and security audit trail
type AuditEvent struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty" db:"user_id"` // nil before authentication
	Action     string     `json:"action" db:"action"`
	EntityType string     `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id,omitempty" db:"entity_id"`
	IPAddress  string     `json:"ip_address" db:"ip_address"`
	UserAgent  string     `json:"user_agent" db:"user_agent"`
	Details    JSONMap    `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// AuditFilter narrows an audit listing
type AuditFilter struct {
	UserID *uuid.UUID
	Action string
	Limit  int
}

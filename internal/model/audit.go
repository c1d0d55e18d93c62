package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateIncome     = "CREATE_INCOME"
	ActionCorrectIncome    = "CORRECT_INCOME"
	ActionVoidIncome       = "VOID_INCOME"
	ActionReactivateIncome = "REACTIVATE_INCOME"
	ActionRegisterPayment  = "REGISTER_PAYMENT"
	ActionApplyRemainder   = "APPLY_PAYMENT_REMAINDER"
	ActionCreateRate       = "CREATE_CLIENT_RATE"
)

// AuditLog tracks Who, What, and When for ledger mutations
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for automated jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable label (client, activity)
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

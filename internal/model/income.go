package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateType enum constants — the billing tier used to price an income.
const (
	RateHourly   = "HOURLY"
	RateHalfDay  = "HALF_DAY"
	RateFullDay  = "FULL_DAY"
	RateOvertime = "OVERTIME"
	RateManual   = "MANUAL"
)

// PaymentStatus enum constants
const (
	StatusPending = "PENDING"
	StatusPartial = "PARTIAL"
	StatusPaid    = "PAID"
)

// DefaultPaymentTermDays is added to the service date to produce the due date.
const DefaultPaymentTermDays = 30

// Income is a single billable unit of work. RemainingUSD starts equal to
// TotalUSD and only decreases as payments are applied; the row is never
// deleted, only voided.
//
// Invariants: 0 <= remaining_usd <= total_usd; payment_status PAID implies
// remaining_usd = 0 and paid_date set.
type Income struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ServiceClientID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"service_client_id"`
	ServiceClient     *Client         `gorm:"foreignKey:ServiceClientID" json:"service_client,omitempty"`
	PayerClientID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"payer_client_id"`
	PayerClient       *Client         `gorm:"foreignKey:PayerClientID" json:"payer_client,omitempty"`
	ProjectID         *uuid.UUID      `gorm:"type:uuid;index" json:"project_id"`
	Project           *Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	CustomProjectName *string         `gorm:"type:varchar(255)" json:"custom_project_name"`
	RecordedByID      *uuid.UUID      `gorm:"type:uuid;index" json:"recorded_by_id"`
	Activity          string          `gorm:"type:text;not null" json:"activity"`
	Notes             *string         `gorm:"type:text" json:"notes"`
	HoursWorked       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"hours_worked"`
	RateType          string          `gorm:"type:varchar(20);not null" json:"rate_type"` // HOURLY, HALF_DAY, FULL_DAY, OVERTIME, MANUAL
	RateApplied       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate_applied"`
	TotalUSD          decimal.Decimal `gorm:"column:total_usd;type:decimal(18,4);not null" json:"total_usd"`
	ConversionRate    decimal.Decimal `gorm:"type:decimal(18,6);not null;default:1" json:"conversion_rate"`
	TotalLocal        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_local"`
	RemainingUSD      decimal.Decimal `gorm:"column:remaining_usd;type:decimal(18,4);not null" json:"remaining_usd"`
	PaymentStatus     string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"payment_status"` // PENDING, PARTIAL, PAID
	ServiceDate       time.Time       `gorm:"type:date;not null;index" json:"service_date"`
	DueDate           time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	PaidDate          *time.Time      `gorm:"type:date" json:"paid_date"`
	Voided            bool            `gorm:"not null;default:false;index" json:"voided"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

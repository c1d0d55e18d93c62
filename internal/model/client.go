package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Client represents a company the business schedules engineers for and/or
// bills. The serviced party and the paying party of an income may be two
// different clients.
type Client struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyName   string         `gorm:"type:varchar(255);not null;index" json:"company_name"`
	ContactPerson string         `gorm:"type:varchar(255)" json:"contact_person"`
	Email         string         `gorm:"type:varchar(255)" json:"email"`
	Phone         string         `gorm:"type:varchar(50)" json:"phone"`
	Address       string         `gorm:"type:text" json:"address"`
	Notes         string         `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// ClientRate is a client's tariff schedule. At most one schedule per client
// is active (vigente) at a time; creating a new schedule deactivates the
// previous one. Rates are in the settlement currency (USD).
type ClientRate struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client           *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	HourlyRate       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hourly_rate"`
	HalfDayRate      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"half_day_rate"`
	FullDayRate      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"full_day_rate"`
	OvertimeHourRate decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"overtime_hour_rate"`
	Active           bool            `gorm:"not null;default:true;index" json:"active"`
	EffectiveFrom    time.Time       `gorm:"type:date;not null" json:"effective_from"`
	EffectiveTo      *time.Time      `gorm:"type:date" json:"effective_to"` // nil while the schedule is active
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

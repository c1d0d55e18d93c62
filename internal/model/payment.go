package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementCurrency is the single currency balances are compared and
// summed in. Payments received in any other currency are converted at
// registration time.
const SettlementCurrency = "USD"

// Payment is a receipt of money from a client. AmountLocal is nil when the
// payment arrived directly in the settlement currency. RemainingUSD is the
// portion not yet matched to any income; it only ever decreases.
//
// Invariant: 0 <= remaining_usd <= amount_usd.
type Payment struct {
	ID             uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"client_id"`
	Client         *Client          `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	RecordedByID   *uuid.UUID       `gorm:"type:uuid" json:"recorded_by_id"`
	PaymentDate    time.Time        `gorm:"type:date;not null;index" json:"payment_date"`
	Currency       string           `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	AmountLocal    *decimal.Decimal `gorm:"type:decimal(18,4)" json:"amount_local"`
	AmountUSD      decimal.Decimal  `gorm:"column:amount_usd;type:decimal(18,4);not null" json:"amount_usd"`
	ConversionRate decimal.Decimal  `gorm:"type:decimal(18,6);not null;default:1" json:"conversion_rate"`
	RemainingUSD   decimal.Decimal  `gorm:"column:remaining_usd;type:decimal(18,4);not null" json:"remaining_usd"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// PaymentLink records how much of a payment was applied to an income.
// Links are written once during allocation and never edited; corrections
// are made by voiding and re-allocating.
//
// Invariant: per income, sum(amount_applied_usd) + income.remaining_usd =
// income.total_usd; per payment, sum(amount_applied_usd) +
// payment.remaining_usd = payment.amount_usd.
type PaymentLink struct {
	PaymentID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"payment_id"`
	IncomeID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"income_id"`
	Income           *Income         `gorm:"foreignKey:IncomeID" json:"income,omitempty"`
	AmountAppliedUSD decimal.Decimal `gorm:"column:amount_applied_usd;type:decimal(18,4);not null" json:"amount_applied_usd"`
	CreatedAt        time.Time       `json:"created_at"`
}

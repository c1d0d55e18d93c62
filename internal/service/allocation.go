package service

import (
	"time"

	"fieldops-backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinPaymentUSD is the smallest amount a payment may carry, one cent of the
// settlement currency.
var MinPaymentUSD = decimal.NewFromFloat(0.01)

// allocate distributes amountUSD across the target incomes strictly in the
// order given, mutating each income's remaining balance and status in
// place. The ordering is the caller's decision (oldest-due-first,
// user-selected, anything); the engine never reorders.
//
// Returns the links to persist and the unapplied leftover. The leftover
// stays attached to the payment for a later explicit allocation; it is
// never swept automatically.
//
// Guarantees: sum(links) + leftover == amountUSD; no income balance goes
// negative; incomes past the point the amount runs out are untouched.
func allocate(paymentID uuid.UUID, amountUSD decimal.Decimal, targets []*model.Income, paymentDate time.Time) ([]model.PaymentLink, decimal.Decimal, error) {
	if amountUSD.LessThan(MinPaymentUSD) {
		return nil, decimal.Zero, ErrInvalidAmount
	}

	seen := make(map[uuid.UUID]bool, len(targets))
	for _, income := range targets {
		if income.Voided || !income.RemainingUSD.IsPositive() || seen[income.ID] {
			return nil, decimal.Zero, ErrInvalidTarget
		}
		seen[income.ID] = true
	}

	remaining := amountUSD
	links := make([]model.PaymentLink, 0, len(targets))

	for _, income := range targets {
		if !remaining.IsPositive() {
			break
		}

		applied := decimal.Min(remaining, income.RemainingUSD)
		links = append(links, model.PaymentLink{
			PaymentID:        paymentID,
			IncomeID:         income.ID,
			AmountAppliedUSD: applied,
		})

		income.RemainingUSD = income.RemainingUSD.Sub(applied)
		remaining = remaining.Sub(applied)

		if income.RemainingUSD.LessThanOrEqual(decimal.Zero) {
			// Clamp away any rounding residue so the paid state is exact.
			income.RemainingUSD = decimal.Zero
			income.PaymentStatus = model.StatusPaid
			paid := paymentDate
			income.PaidDate = &paid
		} else {
			income.PaymentStatus = model.StatusPartial
		}
	}

	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return links, remaining, nil
}

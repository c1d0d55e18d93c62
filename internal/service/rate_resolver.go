package service

import (
	"fieldops-backend/internal/model"

	"github.com/shopspring/decimal"
)

// Tier boundaries in hours. A tier only applies when the schedule carries a
// positive rate for it; otherwise pricing falls through to hourly.
var (
	halfDayMin = decimal.NewFromInt(4)
	fullDayMin = decimal.NewFromInt(6)
	fullDayMax = decimal.NewFromInt(8)
)

// ResolveRate picks the billing tier for a unit of work and computes the
// charge in the settlement currency.
//
// A non-nil manual override wins outright and ignores the schedule. Tiers
// are evaluated in order, first match wins:
//
//	4 <= h < 6  -> HALF_DAY  (flat half_day_rate)
//	6 <= h <= 8 -> FULL_DAY  (flat full_day_rate)
//	h > 8       -> OVERTIME  (overtime_hour_rate * h)
//	otherwise   -> HOURLY    (hourly_rate * h)
//
// Pure function: no lookups, no side effects.
func ResolveRate(hours decimal.Decimal, schedule *model.ClientRate, manual *decimal.Decimal) (string, decimal.Decimal, error) {
	if hours.IsNegative() {
		return "", decimal.Zero, ErrInvalidHours
	}

	if manual != nil {
		if manual.IsNegative() {
			return "", decimal.Zero, ErrInvalidAmount
		}
		return model.RateManual, *manual, nil
	}

	if schedule == nil {
		return "", decimal.Zero, ErrNoActiveRate
	}

	switch {
	case hours.GreaterThanOrEqual(halfDayMin) && hours.LessThan(fullDayMin) && schedule.HalfDayRate.IsPositive():
		return model.RateHalfDay, schedule.HalfDayRate, nil
	case hours.GreaterThanOrEqual(fullDayMin) && hours.LessThanOrEqual(fullDayMax) && schedule.FullDayRate.IsPositive():
		return model.RateFullDay, schedule.FullDayRate, nil
	case hours.GreaterThan(fullDayMax) && schedule.OvertimeHourRate.IsPositive():
		return model.RateOvertime, schedule.OvertimeHourRate.Mul(hours), nil
	default:
		return model.RateHourly, schedule.HourlyRate.Mul(hours), nil
	}
}

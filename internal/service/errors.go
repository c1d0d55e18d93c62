package service

import "errors"

// Failure taxonomy for the billing core. Handlers match these with
// errors.Is to choose response codes; none of them are recovered silently
// inside the services, except the bounded retry on ErrAllocationConflict.
var (
	// ErrInvalidHours rejects negative hours before any rate lookup.
	ErrInvalidHours = errors.New("hours worked must be non-negative")

	// ErrNoActiveRate means the payer client has no active rate schedule.
	ErrNoActiveRate = errors.New("no active rate schedule for payer client")

	// ErrInvalidAmount rejects non-positive monetary amounts: zero-total
	// incomes as well as sub-threshold payments.
	ErrInvalidAmount = errors.New("amount must be at least 0.01 USD")

	// ErrInvalidTarget rejects allocation against a voided, already-paid,
	// or duplicated income.
	ErrInvalidTarget = errors.New("income is not a valid allocation target")

	// ErrAllocationConflict is surfaced when concurrent allocations against
	// the same incomes could not be serialized within the retry limit. The
	// request left no partial writes and is safe to repeat.
	ErrAllocationConflict = errors.New("allocation conflicted with a concurrent payment, retry")

	// ErrNoRemainder rejects applying a payment whose unapplied balance is
	// already zero.
	ErrNoRemainder = errors.New("payment has no unapplied remainder")
)

package handler

import (
	"errors"
	"net/http"

	"fieldops-backend/internal/exchange"
	"fieldops-backend/internal/service"

	"gorm.io/gorm"
)

// statusForError maps the billing failure taxonomy onto HTTP status codes.
// Validation and consistency failures are the caller's fault; a missing
// rate source is an upstream failure; an allocation conflict is transient
// and safe to retry.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidHours),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidTarget),
		errors.Is(err, service.ErrNoRemainder):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNoActiveRate),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrRateUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrAllocationConflict):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

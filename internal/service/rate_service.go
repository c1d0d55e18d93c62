package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldops-backend/internal/model"
	"fieldops-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRateRequest struct {
	ClientID         string `json:"client_id" binding:"required"`
	HourlyRate       string `json:"hourly_rate" binding:"required"`
	HalfDayRate      string `json:"half_day_rate"`
	FullDayRate      string `json:"full_day_rate"`
	OvertimeHourRate string `json:"overtime_hour_rate"`
	EffectiveFrom    string `json:"effective_from"` // YYYY-MM-DD, defaults to today
}

type RateResponse struct {
	ID               string  `json:"id"`
	ClientID         string  `json:"client_id"`
	HourlyRate       string  `json:"hourly_rate"`
	HalfDayRate      string  `json:"half_day_rate"`
	FullDayRate      string  `json:"full_day_rate"`
	OvertimeHourRate string  `json:"overtime_hour_rate"`
	Active           bool    `json:"active"`
	EffectiveFrom    string  `json:"effective_from"`
	EffectiveTo      *string `json:"effective_to"`
	CreatedAt        string  `json:"created_at"`
}

// --- Interface ---

type RateService interface {
	// CreateRate installs a new tariff schedule for the client inside a
	// single transaction that closes out the previous active one, keeping
	// exactly one schedule active per client.
	CreateRate(ctx context.Context, userID string, req CreateRateRequest) (RateResponse, error)
	GetActiveRate(ctx context.Context, clientID string) (RateResponse, error)
	ListRates(ctx context.Context, clientID string, activeOnly bool) ([]RateResponse, error)
}

type rateService struct {
	rateRepo   repository.RateRepository
	clientRepo repository.ClientRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
}

func NewRateService(
	rateRepo repository.RateRepository,
	clientRepo repository.ClientRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) RateService {
	return &rateService{
		rateRepo:   rateRepo,
		clientRepo: clientRepo,
		auditRepo:  auditRepo,
		txManager:  txManager,
	}
}

// --- Implementation ---

func (s *rateService) CreateRate(ctx context.Context, userID string, req CreateRateRequest) (RateResponse, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return RateResponse{}, fmt.Errorf("invalid client_id: %w", err)
	}

	if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
		return RateResponse{}, fmt.Errorf("client not found: %w", err)
	}

	hourly, err := parseRate(req.HourlyRate, "hourly_rate")
	if err != nil {
		return RateResponse{}, err
	}
	halfDay, err := parseOptionalRate(req.HalfDayRate, "half_day_rate")
	if err != nil {
		return RateResponse{}, err
	}
	fullDay, err := parseOptionalRate(req.FullDayRate, "full_day_rate")
	if err != nil {
		return RateResponse{}, err
	}
	overtime, err := parseOptionalRate(req.OvertimeHourRate, "overtime_hour_rate")
	if err != nil {
		return RateResponse{}, err
	}

	effectiveFrom := time.Now().Truncate(24 * time.Hour)
	if req.EffectiveFrom != "" {
		effectiveFrom, err = time.Parse(dateLayout, req.EffectiveFrom)
		if err != nil {
			return RateResponse{}, fmt.Errorf("invalid effective_from: %w", err)
		}
	}

	rate := &model.ClientRate{
		ClientID:         clientID,
		HourlyRate:       hourly,
		HalfDayRate:      halfDay,
		FullDayRate:      fullDay,
		OvertimeHourRate: overtime,
		Active:           true,
		EffectiveFrom:    effectiveFrom,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if deactivateErr := s.rateRepo.DeactivateForClient(txCtx, clientID, effectiveFrom); deactivateErr != nil {
			return fmt.Errorf("failed to close previous schedule: %w", deactivateErr)
		}
		if createErr := s.rateRepo.Create(txCtx, rate); createErr != nil {
			return fmt.Errorf("failed to create rate schedule: %w", createErr)
		}

		entry := &model.AuditLog{
			Action:   model.ActionCreateRate,
			EntityID: rate.ID.String(),
		}
		if actorID, parseErr := uuid.Parse(userID); parseErr == nil {
			entry.UserID = &actorID
		}
		if payload, marshalErr := json.Marshal(map[string]string{
			"client_id":   clientID.String(),
			"hourly_rate": hourly.StringFixed(4),
		}); marshalErr == nil {
			entry.Details = string(payload)
		}
		_ = s.auditRepo.Create(txCtx, entry)
		return nil
	})
	if err != nil {
		return RateResponse{}, err
	}

	return toRateResponse(*rate), nil
}

func (s *rateService) GetActiveRate(ctx context.Context, clientID string) (RateResponse, error) {
	id, err := uuid.Parse(clientID)
	if err != nil {
		return RateResponse{}, fmt.Errorf("invalid client id: %w", err)
	}

	rate, err := s.rateRepo.FindActiveByClient(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RateResponse{}, ErrNoActiveRate
		}
		return RateResponse{}, fmt.Errorf("failed to load rate schedule: %w", err)
	}

	return toRateResponse(*rate), nil
}

func (s *rateService) ListRates(ctx context.Context, clientID string, activeOnly bool) ([]RateResponse, error) {
	id, err := uuid.Parse(clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client id: %w", err)
	}

	rates, err := s.rateRepo.ListByClient(ctx, id, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rate schedules: %w", err)
	}

	result := make([]RateResponse, 0, len(rates))
	for _, rate := range rates {
		result = append(result, toRateResponse(rate))
	}
	return result, nil
}

// --- Helpers ---

func parseRate(raw, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", field, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be non-negative", field)
	}
	return value, nil
}

func parseOptionalRate(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseRate(raw, field)
}

func toRateResponse(rate model.ClientRate) RateResponse {
	resp := RateResponse{
		ID:               rate.ID.String(),
		ClientID:         rate.ClientID.String(),
		HourlyRate:       rate.HourlyRate.StringFixed(4),
		HalfDayRate:      rate.HalfDayRate.StringFixed(4),
		FullDayRate:      rate.FullDayRate.StringFixed(4),
		OvertimeHourRate: rate.OvertimeHourRate.StringFixed(4),
		Active:           rate.Active,
		EffectiveFrom:    rate.EffectiveFrom.Format(dateLayout),
		CreatedAt:        rate.CreatedAt.Format(time.RFC3339),
	}
	if rate.EffectiveTo != nil {
		to := rate.EffectiveTo.Format(dateLayout)
		resp.EffectiveTo = &to
	}
	return resp
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"fieldops-backend/internal/exchange"
	"fieldops-backend/internal/model"
	"fieldops-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateIncomeRequest struct {
	ServiceClientID   string  `json:"service_client_id" binding:"required"`
	PayerClientID     string  `json:"payer_client_id" binding:"required"`
	ProjectID         string  `json:"project_id"`
	CustomProjectName string  `json:"custom_project_name"`
	Activity          string  `json:"activity" binding:"required"`
	Notes             string  `json:"notes"`
	HoursWorked       string  `json:"hours_worked" binding:"required"`
	ServiceDate       string  `json:"service_date" binding:"required"` // YYYY-MM-DD
	ManualRate        *string `json:"manual_rate"`                     // overrides the schedule when set
}

type CorrectIncomeRequest struct {
	RateApplied string  `json:"rate_applied" binding:"required"`
	Notes       *string `json:"notes"`
}

type IncomeFilter struct {
	PayerClientID string
	ProjectID     string
	Status        string
	IncludeVoided bool
	Page          int
	Limit         int
}

type IncomeResponse struct {
	ID                string  `json:"id"`
	ServiceClientID   string  `json:"service_client_id"`
	ServiceClientName string  `json:"service_client_name,omitempty"`
	PayerClientID     string  `json:"payer_client_id"`
	PayerClientName   string  `json:"payer_client_name,omitempty"`
	ProjectID         *string `json:"project_id"`
	ProjectName       string  `json:"project_name,omitempty"`
	Activity          string  `json:"activity"`
	Notes             *string `json:"notes"`
	HoursWorked       string  `json:"hours_worked"`
	RateType          string  `json:"rate_type"`
	RateApplied       string  `json:"rate_applied"`
	TotalUSD          string  `json:"total_usd"`
	ConversionRate    string  `json:"conversion_rate"`
	TotalLocal        string  `json:"total_local"`
	RemainingUSD      string  `json:"remaining_usd"`
	PaymentStatus     string  `json:"payment_status"`
	ServiceDate       string  `json:"service_date"`
	DueDate           string  `json:"due_date"`
	PaidDate          *string `json:"paid_date"`
	Voided            bool    `json:"voided"`
	CreatedAt         string  `json:"created_at"`
}

// --- Interface ---

type IncomeService interface {
	// CreateIncome prices the logged hours against the payer's active rate
	// schedule (or a manual override) and opens the receivable.
	CreateIncome(ctx context.Context, userID string, req CreateIncomeRequest) (IncomeResponse, error)
	ListIncomes(ctx context.Context, filter IncomeFilter) ([]IncomeResponse, int64, error)
	ListOutstanding(ctx context.Context, payerClientID string) ([]IncomeResponse, error)
	// CorrectIncome re-prices an income nothing has been applied to yet.
	// Partially or fully paid incomes are corrected by voiding and
	// re-creating, never by editing in place.
	CorrectIncome(ctx context.Context, userID string, id string, req CorrectIncomeRequest) (IncomeResponse, error)
	SetVoided(ctx context.Context, userID string, id string, voided bool) (IncomeResponse, error)
}

type incomeService struct {
	incomeRepo  repository.IncomeRepository
	rateRepo    repository.RateRepository
	clientRepo  repository.ClientRepository
	projectRepo repository.ProjectRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	converter   exchange.Converter
}

func NewIncomeService(
	incomeRepo repository.IncomeRepository,
	rateRepo repository.RateRepository,
	clientRepo repository.ClientRepository,
	projectRepo repository.ProjectRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	converter exchange.Converter,
) IncomeService {
	return &incomeService{
		incomeRepo:  incomeRepo,
		rateRepo:    rateRepo,
		clientRepo:  clientRepo,
		projectRepo: projectRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		converter:   converter,
	}
}

// localCurrency is the currency client-facing totals are displayed in
// alongside the settlement amount.
func localCurrency() string {
	if c := os.Getenv("LOCAL_CURRENCY"); c != "" {
		return c
	}
	return "MXN"
}

// --- Implementation ---

func (s *incomeService) CreateIncome(ctx context.Context, userID string, req CreateIncomeRequest) (IncomeResponse, error) {
	serviceClientID, err := uuid.Parse(req.ServiceClientID)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid service_client_id: %w", err)
	}
	payerClientID, err := uuid.Parse(req.PayerClientID)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid payer_client_id: %w", err)
	}

	hours, err := decimal.NewFromString(req.HoursWorked)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid hours_worked: %w", err)
	}
	if hours.IsNegative() {
		return IncomeResponse{}, ErrInvalidHours
	}

	serviceDate, err := time.Parse(dateLayout, req.ServiceDate)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid service_date: %w", err)
	}

	var manual *decimal.Decimal
	if req.ManualRate != nil {
		parsed, parseErr := decimal.NewFromString(*req.ManualRate)
		if parseErr != nil {
			return IncomeResponse{}, fmt.Errorf("invalid manual_rate: %w", parseErr)
		}
		manual = &parsed
	}

	if _, err := s.clientRepo.FindByID(ctx, serviceClientID); err != nil {
		return IncomeResponse{}, fmt.Errorf("service client not found: %w", err)
	}
	if _, err := s.clientRepo.FindByID(ctx, payerClientID); err != nil {
		return IncomeResponse{}, fmt.Errorf("payer client not found: %w", err)
	}

	var projectID *uuid.UUID
	var customName *string
	switch {
	case req.ProjectID != "":
		parsed, parseErr := uuid.Parse(req.ProjectID)
		if parseErr != nil {
			return IncomeResponse{}, fmt.Errorf("invalid project_id: %w", parseErr)
		}
		if _, findErr := s.projectRepo.FindByID(ctx, parsed); findErr != nil {
			return IncomeResponse{}, fmt.Errorf("project not found: %w", findErr)
		}
		projectID = &parsed
	case req.CustomProjectName != "":
		name := req.CustomProjectName
		customName = &name
	}

	// Manual overrides skip the schedule lookup entirely; the two pricing
	// modes are mutually exclusive by construction.
	var schedule *model.ClientRate
	if manual == nil {
		schedule, err = s.rateRepo.FindActiveByClient(ctx, payerClientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return IncomeResponse{}, ErrNoActiveRate
			}
			return IncomeResponse{}, fmt.Errorf("failed to load rate schedule: %w", err)
		}
	}

	rateType, rateApplied, err := ResolveRate(hours, schedule, manual)
	if err != nil {
		return IncomeResponse{}, err
	}

	totalUSD := rateApplied
	// A zero-total income could never be settled and would sit in the
	// outstanding list forever; remaining_usd == 0 always means PAID.
	if !totalUSD.IsPositive() {
		return IncomeResponse{}, ErrInvalidAmount
	}

	// Pricing is authoritative in USD; the local figure is stored for
	// client-facing documents and must come from a live rate, never a
	// hardcoded fallback.
	totalLocal, conversionRate, err := s.converter.ConvertFromSettlement(ctx, totalUSD, localCurrency())
	if err != nil {
		return IncomeResponse{}, err
	}

	income := &model.Income{
		ServiceClientID:   serviceClientID,
		PayerClientID:     payerClientID,
		ProjectID:         projectID,
		CustomProjectName: customName,
		Activity:          req.Activity,
		HoursWorked:       hours,
		RateType:          rateType,
		RateApplied:       rateApplied,
		TotalUSD:          totalUSD,
		ConversionRate:    conversionRate,
		TotalLocal:        totalLocal,
		RemainingUSD:      totalUSD,
		PaymentStatus:     model.StatusPending,
		ServiceDate:       serviceDate,
		DueDate:           serviceDate.AddDate(0, 0, model.DefaultPaymentTermDays),
	}
	if req.Notes != "" {
		notes := req.Notes
		income.Notes = &notes
	}
	if actorID, parseErr := uuid.Parse(userID); parseErr == nil {
		income.RecordedByID = &actorID
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.incomeRepo.Create(txCtx, income); createErr != nil {
			return fmt.Errorf("failed to create income: %w", createErr)
		}
		s.audit(txCtx, userID, model.ActionCreateIncome, income.ID.String(), map[string]interface{}{
			"payer_client_id": payerClientID.String(),
			"rate_type":       rateType,
			"total_usd":       totalUSD.StringFixed(4),
		})
		return nil
	})
	if err != nil {
		return IncomeResponse{}, err
	}

	return toIncomeResponse(*income), nil
}

func (s *incomeService) ListIncomes(ctx context.Context, filter IncomeFilter) ([]IncomeResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.IncomeListFilter{
		Status:        filter.Status,
		IncludeVoided: filter.IncludeVoided,
		Page:          filter.Page,
		Limit:         filter.Limit,
	}
	if filter.PayerClientID != "" {
		id, err := uuid.Parse(filter.PayerClientID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid payer client id: %w", err)
		}
		repoFilter.PayerClientID = &id
	}
	if filter.ProjectID != "" {
		id, err := uuid.Parse(filter.ProjectID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid project id: %w", err)
		}
		repoFilter.ProjectID = &id
	}

	incomes, total, err := s.incomeRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch incomes: %w", err)
	}

	result := make([]IncomeResponse, 0, len(incomes))
	for _, income := range incomes {
		result = append(result, toIncomeResponse(income))
	}
	return result, total, nil
}

func (s *incomeService) ListOutstanding(ctx context.Context, payerClientID string) ([]IncomeResponse, error) {
	id, err := uuid.Parse(payerClientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client id: %w", err)
	}

	incomes, err := s.incomeRepo.ListOutstandingByPayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outstanding incomes: %w", err)
	}

	result := make([]IncomeResponse, 0, len(incomes))
	for _, income := range incomes {
		result = append(result, toIncomeResponse(income))
	}
	return result, nil
}

func (s *incomeService) CorrectIncome(ctx context.Context, userID string, id string, req CorrectIncomeRequest) (IncomeResponse, error) {
	incomeID, err := uuid.Parse(id)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid income id: %w", err)
	}

	newRate, err := decimal.NewFromString(req.RateApplied)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid rate_applied: %w", err)
	}
	if !newRate.IsPositive() {
		return IncomeResponse{}, ErrInvalidAmount
	}

	var income *model.Income
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		income, findErr = s.incomeRepo.FindByIDForUpdate(txCtx, incomeID)
		if findErr != nil {
			return fmt.Errorf("income not found: %w", findErr)
		}

		if income.Voided {
			return fmt.Errorf("%w: income is voided", ErrInvalidTarget)
		}
		if !income.RemainingUSD.Equal(income.TotalUSD) {
			return fmt.Errorf("%w: income already has payments applied", ErrInvalidTarget)
		}

		income.RateType = model.RateManual
		income.RateApplied = newRate
		income.TotalUSD = newRate
		income.RemainingUSD = newRate
		if req.Notes != nil {
			income.Notes = req.Notes
		}

		if updateErr := s.incomeRepo.Update(txCtx, income); updateErr != nil {
			return fmt.Errorf("failed to update income: %w", updateErr)
		}

		s.audit(txCtx, userID, model.ActionCorrectIncome, income.ID.String(), map[string]interface{}{
			"rate_applied": newRate.StringFixed(4),
		})
		return nil
	})
	if err != nil {
		return IncomeResponse{}, err
	}

	return toIncomeResponse(*income), nil
}

func (s *incomeService) SetVoided(ctx context.Context, userID string, id string, voided bool) (IncomeResponse, error) {
	incomeID, err := uuid.Parse(id)
	if err != nil {
		return IncomeResponse{}, fmt.Errorf("invalid income id: %w", err)
	}

	var income *model.Income
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		income, findErr = s.incomeRepo.FindByIDForUpdate(txCtx, incomeID)
		if findErr != nil {
			return fmt.Errorf("income not found: %w", findErr)
		}

		if income.Voided == voided {
			return nil
		}

		if setErr := s.incomeRepo.SetVoided(txCtx, incomeID, voided); setErr != nil {
			return fmt.Errorf("failed to update income: %w", setErr)
		}
		income.Voided = voided

		action := model.ActionVoidIncome
		if !voided {
			action = model.ActionReactivateIncome
		}
		s.audit(txCtx, userID, action, income.ID.String(), map[string]interface{}{
			"activity": income.Activity,
		})
		return nil
	})
	if err != nil {
		return IncomeResponse{}, err
	}

	return toIncomeResponse(*income), nil
}

// --- Helpers ---

func (s *incomeService) audit(ctx context.Context, userID, action, entityID string, details map[string]interface{}) {
	entry := &model.AuditLog{
		Action:   action,
		EntityID: entityID,
	}
	if actorID, err := uuid.Parse(userID); err == nil {
		entry.UserID = &actorID
	}
	if payload, err := json.Marshal(details); err == nil {
		entry.Details = string(payload)
	}
	_ = s.auditRepo.Create(ctx, entry)
}

func toIncomeResponse(income model.Income) IncomeResponse {
	resp := IncomeResponse{
		ID:              income.ID.String(),
		ServiceClientID: income.ServiceClientID.String(),
		PayerClientID:   income.PayerClientID.String(),
		Activity:        income.Activity,
		Notes:           income.Notes,
		HoursWorked:     income.HoursWorked.StringFixed(2),
		RateType:        income.RateType,
		RateApplied:     income.RateApplied.StringFixed(4),
		TotalUSD:        income.TotalUSD.StringFixed(4),
		ConversionRate:  income.ConversionRate.StringFixed(6),
		TotalLocal:      income.TotalLocal.StringFixed(4),
		RemainingUSD:    income.RemainingUSD.StringFixed(4),
		PaymentStatus:   income.PaymentStatus,
		ServiceDate:     income.ServiceDate.Format(dateLayout),
		DueDate:         income.DueDate.Format(dateLayout),
		Voided:          income.Voided,
		CreatedAt:       income.CreatedAt.Format(time.RFC3339),
	}

	if income.ServiceClient != nil {
		resp.ServiceClientName = income.ServiceClient.CompanyName
	}
	if income.PayerClient != nil {
		resp.PayerClientName = income.PayerClient.CompanyName
	}
	if income.ProjectID != nil {
		id := income.ProjectID.String()
		resp.ProjectID = &id
	}
	switch {
	case income.Project != nil:
		resp.ProjectName = income.Project.Name
	case income.CustomProjectName != nil:
		resp.ProjectName = *income.CustomProjectName
	}
	if income.PaidDate != nil {
		paid := income.PaidDate.Format(dateLayout)
		resp.PaidDate = &paid
	}

	return resp
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldops-backend/internal/exchange"
	"fieldops-backend/internal/model"
	"fieldops-backend/internal/repository"
	ws "fieldops-backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// maxAllocationRetries bounds the automatic re-run of an allocation whose
// transaction lost a serialization race. Each retry re-reads balances from
// scratch, so a retried request can never double-apply.
const maxAllocationRetries = 3

// --- DTOs ---

type RegisterPaymentRequest struct {
	ClientID    string   `json:"client_id" binding:"required"`
	PaymentDate string   `json:"payment_date" binding:"required"` // YYYY-MM-DD
	Currency    string   `json:"currency" binding:"required"`
	Amount      string   `json:"amount" binding:"required"` // in Currency
	IncomeIDs   []string `json:"income_ids" binding:"required,min=1"`
}

type ApplyRemainderRequest struct {
	IncomeIDs []string `json:"income_ids" binding:"required,min=1"`
}

type PaymentLinkResponse struct {
	IncomeID         string `json:"income_id"`
	Activity         string `json:"activity,omitempty"`
	AmountAppliedUSD string `json:"amount_applied_usd"`
}

type PaymentResponse struct {
	ID             string                `json:"id"`
	ClientID       string                `json:"client_id"`
	PaymentDate    string                `json:"payment_date"`
	Currency       string                `json:"currency"`
	AmountLocal    *string               `json:"amount_local"`
	AmountUSD      string                `json:"amount_usd"`
	ConversionRate string                `json:"conversion_rate"`
	RemainingUSD   string                `json:"remaining_usd"`
	Links          []PaymentLinkResponse `json:"links,omitempty"`
	CreatedAt      string                `json:"created_at"`
}

type ClientBalanceResponse struct {
	ClientID        string `json:"client_id"`
	TotalPaidUSD    string `json:"total_paid_usd"`
	TotalPendingUSD string `json:"total_pending_usd"`
	OverdueCount    int64  `json:"overdue_count"`
}

// --- Interface ---

type PaymentService interface {
	// RegisterPayment converts the received amount to the settlement
	// currency, distributes it across the selected incomes in the order
	// given, and commits payment, links and income updates atomically.
	RegisterPayment(ctx context.Context, userID string, req RegisterPaymentRequest) (PaymentResponse, error)
	// ApplyRemainder applies an existing payment's dormant unapplied
	// balance to newly named incomes. Remainders are never swept
	// automatically; this is the only path that touches them.
	ApplyRemainder(ctx context.Context, userID string, paymentID string, req ApplyRemainderRequest) (PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (PaymentResponse, error)
	ListClientPayments(ctx context.Context, clientID string, limit int) ([]PaymentResponse, error)
	OutstandingBalance(ctx context.Context, clientID string) (ClientBalanceResponse, error)
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
	incomeRepo  repository.IncomeRepository
	clientRepo  repository.ClientRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	converter   exchange.Converter
	hub         *ws.Hub
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	incomeRepo repository.IncomeRepository,
	clientRepo repository.ClientRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	converter exchange.Converter,
	hub *ws.Hub,
) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		incomeRepo:  incomeRepo,
		clientRepo:  clientRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		converter:   converter,
		hub:         hub,
	}
}

// --- Implementation ---

func (s *paymentService) RegisterPayment(ctx context.Context, userID string, req RegisterPaymentRequest) (PaymentResponse, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("invalid client_id: %w", err)
	}

	paymentDate, err := time.Parse(dateLayout, req.PaymentDate)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("invalid payment_date: %w", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("invalid amount: %w", err)
	}

	incomeIDs, err := parseIncomeIDs(req.IncomeIDs)
	if err != nil {
		return PaymentResponse{}, err
	}

	if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
		return PaymentResponse{}, fmt.Errorf("client not found: %w", err)
	}

	// Normalize to the settlement currency before touching the ledger.
	// Conversion is the only step allowed to block on an external
	// dependency; it fails fast rather than substituting a stale rate.
	amountUSD, rate, err := s.converter.Convert(ctx, amount, req.Currency)
	if err != nil {
		return PaymentResponse{}, err
	}

	if amountUSD.LessThan(MinPaymentUSD) {
		return PaymentResponse{}, ErrInvalidAmount
	}

	payment := &model.Payment{
		ClientID:       clientID,
		PaymentDate:    paymentDate,
		Currency:       req.Currency,
		AmountUSD:      amountUSD,
		ConversionRate: rate,
		RemainingUSD:   amountUSD,
	}
	if req.Currency != model.SettlementCurrency {
		local := amount
		payment.AmountLocal = &local
	}
	if actorID, parseErr := uuid.Parse(userID); parseErr == nil {
		payment.RecordedByID = &actorID
	}

	err = s.withAllocationRetries(ctx, func(txCtx context.Context) error {
		// Re-read targets under row locks so concurrent allocations
		// serialize instead of both applying against stale balances.
		targets, lockErr := s.lockIncomes(txCtx, clientID, incomeIDs)
		if lockErr != nil {
			return lockErr
		}

		// Fresh row on every retry; gorm would otherwise reuse the ID.
		payment.ID = uuid.Nil
		if createErr := s.paymentRepo.Create(txCtx, payment); createErr != nil {
			return fmt.Errorf("failed to create payment: %w", createErr)
		}

		links, leftover, allocErr := allocate(payment.ID, amountUSD, targets, paymentDate)
		if allocErr != nil {
			return allocErr
		}

		for i := range links {
			if linkErr := s.paymentRepo.CreateLink(txCtx, &links[i]); linkErr != nil {
				return fmt.Errorf("failed to create payment link: %w", linkErr)
			}
		}
		for _, income := range targets {
			if updateErr := s.incomeRepo.Update(txCtx, income); updateErr != nil {
				return fmt.Errorf("failed to update income: %w", updateErr)
			}
		}

		payment.RemainingUSD = leftover
		if updateErr := s.paymentRepo.Update(txCtx, payment); updateErr != nil {
			return fmt.Errorf("failed to update payment remainder: %w", updateErr)
		}

		s.audit(txCtx, userID, model.ActionRegisterPayment, payment.ID.String(), map[string]interface{}{
			"client_id":     clientID.String(),
			"amount_usd":    amountUSD.StringFixed(4),
			"remaining_usd": leftover.StringFixed(4),
			"links":         len(links),
		})
		return nil
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	s.broadcast("payment_registered", payment)

	return s.GetPayment(ctx, payment.ID.String())
}

func (s *paymentService) ApplyRemainder(ctx context.Context, userID string, paymentID string, req ApplyRemainderRequest) (PaymentResponse, error) {
	id, err := uuid.Parse(paymentID)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("invalid payment id: %w", err)
	}

	incomeIDs, err := parseIncomeIDs(req.IncomeIDs)
	if err != nil {
		return PaymentResponse{}, err
	}

	applicationDate := time.Now().Truncate(24 * time.Hour)

	var payment *model.Payment
	err = s.withAllocationRetries(ctx, func(txCtx context.Context) error {
		var lockErr error
		payment, lockErr = s.paymentRepo.FindByIDForUpdate(txCtx, id)
		if lockErr != nil {
			return fmt.Errorf("payment not found: %w", lockErr)
		}

		if payment.RemainingUSD.LessThan(MinPaymentUSD) {
			return ErrNoRemainder
		}

		targets, tErr := s.lockIncomes(txCtx, payment.ClientID, incomeIDs)
		if tErr != nil {
			return tErr
		}

		links, leftover, allocErr := allocate(payment.ID, payment.RemainingUSD, targets, applicationDate)
		if allocErr != nil {
			return allocErr
		}

		for i := range links {
			if linkErr := s.paymentRepo.CreateLink(txCtx, &links[i]); linkErr != nil {
				return fmt.Errorf("failed to create payment link: %w", linkErr)
			}
		}
		for _, income := range targets {
			if updateErr := s.incomeRepo.Update(txCtx, income); updateErr != nil {
				return fmt.Errorf("failed to update income: %w", updateErr)
			}
		}

		payment.RemainingUSD = leftover
		if updateErr := s.paymentRepo.Update(txCtx, payment); updateErr != nil {
			return fmt.Errorf("failed to update payment remainder: %w", updateErr)
		}

		s.audit(txCtx, userID, model.ActionApplyRemainder, payment.ID.String(), map[string]interface{}{
			"remaining_usd": leftover.StringFixed(4),
			"links":         len(links),
		})
		return nil
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	s.broadcast("payment_remainder_applied", payment)

	return s.GetPayment(ctx, payment.ID.String())
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (PaymentResponse, error) {
	paymentID, err := uuid.Parse(id)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("invalid payment id: %w", err)
	}

	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("payment not found: %w", err)
	}

	links, err := s.paymentRepo.ListLinksByPayment(ctx, paymentID)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("failed to load payment links: %w", err)
	}

	return toPaymentResponse(*payment, links), nil
}

func (s *paymentService) ListClientPayments(ctx context.Context, clientID string, limit int) ([]PaymentResponse, error) {
	id, err := uuid.Parse(clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client id: %w", err)
	}

	payments, err := s.paymentRepo.ListByClient(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}

	result := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		result = append(result, toPaymentResponse(p, nil))
	}
	return result, nil
}

func (s *paymentService) OutstandingBalance(ctx context.Context, clientID string) (ClientBalanceResponse, error) {
	id, err := uuid.Parse(clientID)
	if err != nil {
		return ClientBalanceResponse{}, fmt.Errorf("invalid client id: %w", err)
	}

	balance, err := s.paymentRepo.GetClientBalance(ctx, id)
	if err != nil {
		return ClientBalanceResponse{}, fmt.Errorf("failed to compute balance: %w", err)
	}

	return ClientBalanceResponse{
		ClientID:        id.String(),
		TotalPaidUSD:    balance.TotalPaidUSD.StringFixed(4),
		TotalPendingUSD: balance.TotalPendingUSD.StringFixed(4),
		OverdueCount:    balance.OverdueCount,
	}, nil
}

// --- Helpers ---

// lockIncomes re-reads each target under FOR UPDATE in the caller's order
// and validates it belongs to the paying client and can still absorb money.
func (s *paymentService) lockIncomes(txCtx context.Context, clientID uuid.UUID, incomeIDs []uuid.UUID) ([]*model.Income, error) {
	targets := make([]*model.Income, 0, len(incomeIDs))
	for _, incomeID := range incomeIDs {
		income, err := s.incomeRepo.FindByIDForUpdate(txCtx, incomeID)
		if err != nil {
			return nil, fmt.Errorf("%w: income %s not found", ErrInvalidTarget, incomeID)
		}
		if income.PayerClientID != clientID {
			return nil, fmt.Errorf("%w: income %s belongs to another payer", ErrInvalidTarget, incomeID)
		}
		targets = append(targets, income)
	}
	return targets, nil
}

func (s *paymentService) withAllocationRetries(ctx context.Context, fn func(txCtx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxAllocationRetries; attempt++ {
		err = s.txManager.RunInTx(ctx, fn)
		if err == nil || !isSerializationError(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrAllocationConflict, err)
}

// isSerializationError reports postgres serialization failures and
// deadlocks, the only errors worth an automatic re-run with fresh reads.
func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (s *paymentService) audit(ctx context.Context, userID, action, entityID string, details map[string]interface{}) {
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
	// Audit rides in the same transaction; a failed commit drops the entry
	// together with the writes it describes. A failed audit insert alone
	// does not abort the allocation.
	_ = s.auditRepo.Create(ctx, entry)
}

func (s *paymentService) broadcast(event string, payment *model.Payment) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(ws.BillingEvent{
		Event: event,
		Data: map[string]interface{}{
			"payment_id":    payment.ID.String(),
			"client_id":     payment.ClientID.String(),
			"amount_usd":    payment.AmountUSD.StringFixed(2),
			"remaining_usd": payment.RemainingUSD.StringFixed(2),
		},
	})
	if err != nil {
		return
	}
	s.hub.Broadcast <- payload
}

func parseIncomeIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid income id %q: %w", r, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toPaymentResponse(p model.Payment, links []model.PaymentLink) PaymentResponse {
	resp := PaymentResponse{
		ID:             p.ID.String(),
		ClientID:       p.ClientID.String(),
		PaymentDate:    p.PaymentDate.Format(dateLayout),
		Currency:       p.Currency,
		AmountUSD:      p.AmountUSD.StringFixed(4),
		ConversionRate: p.ConversionRate.StringFixed(6),
		RemainingUSD:   p.RemainingUSD.StringFixed(4),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}

	if p.AmountLocal != nil {
		local := p.AmountLocal.StringFixed(4)
		resp.AmountLocal = &local
	}

	for _, link := range links {
		lr := PaymentLinkResponse{
			IncomeID:         link.IncomeID.String(),
			AmountAppliedUSD: link.AmountAppliedUSD.StringFixed(4),
		}
		if link.Income != nil {
			lr.Activity = link.Income.Activity
		}
		resp.Links = append(resp.Links, lr)
	}

	return resp
}

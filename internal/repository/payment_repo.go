package repository

import (
	"context"

	"fieldops-backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClientBalance aggregates a client's received and outstanding totals.
// All figures are re-derived from the ledger rows on every call.
type ClientBalance struct {
	TotalPaidUSD    decimal.Decimal
	TotalPendingUSD decimal.Decimal
	OverdueCount    int64
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	// FindByIDForUpdate locks the payment row so a dormant remainder cannot
	// be applied twice by concurrent requests.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	Update(ctx context.Context, payment *model.Payment) error
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]model.Payment, error)
	CreateLink(ctx context.Context, link *model.PaymentLink) error
	ListLinksByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.PaymentLink, error)
	GetClientBalance(ctx context.Context, clientID uuid.UUID) (ClientBalance, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Save(payment).Error
}

func (r *paymentRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	query := GetDB(ctx, r.db).Where("client_id = ?", clientID).Order("payment_date desc, created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) CreateLink(ctx context.Context, link *model.PaymentLink) error {
	return GetDB(ctx, r.db).Create(link).Error
}

func (r *paymentRepository) ListLinksByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.PaymentLink, error) {
	var links []model.PaymentLink
	if err := GetDB(ctx, r.db).Preload("Income").
		Where("payment_id = ?", paymentID).
		Order("created_at asc").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *paymentRepository) GetClientBalance(ctx context.Context, clientID uuid.UUID) (ClientBalance, error) {
	db := GetDB(ctx, r.db)

	var paid struct{ Total decimal.Decimal }
	if err := db.Model(&model.Payment{}).
		Select("COALESCE(SUM(amount_usd), 0) as total").
		Where("client_id = ?", clientID).
		Scan(&paid).Error; err != nil {
		return ClientBalance{}, err
	}

	var pending struct{ Total decimal.Decimal }
	if err := db.Model(&model.Income{}).
		Select("COALESCE(SUM(remaining_usd), 0) as total").
		Where("payer_client_id = ? AND voided = false AND payment_status IN ?",
			clientID, []string{model.StatusPending, model.StatusPartial}).
		Scan(&pending).Error; err != nil {
		return ClientBalance{}, err
	}

	var overdue int64
	if err := db.Model(&model.Income{}).
		Where("payer_client_id = ? AND voided = false AND payment_status IN ? AND due_date < CURRENT_DATE",
			clientID, []string{model.StatusPending, model.StatusPartial}).
		Count(&overdue).Error; err != nil {
		return ClientBalance{}, err
	}

	return ClientBalance{
		TotalPaidUSD:    paid.Total,
		TotalPendingUSD: pending.Total,
		OverdueCount:    overdue,
	}, nil
}

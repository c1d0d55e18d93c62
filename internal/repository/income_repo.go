package repository

import (
	"context"

	"fieldops-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IncomeListFilter narrows income listings.
type IncomeListFilter struct {
	PayerClientID *uuid.UUID
	ProjectID     *uuid.UUID
	Status        string // PENDING, PARTIAL, PAID or empty for all
	IncludeVoided bool
	Page          int
	Limit         int
}

type IncomeRepository interface {
	Create(ctx context.Context, income *model.Income) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Income, error)
	// FindByIDForUpdate locks the income row for the duration of the
	// surrounding transaction. Allocation must read balances through this
	// so two concurrent payments cannot both apply against a stale
	// remaining_usd.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Income, error)
	ListOutstandingByPayer(ctx context.Context, payerClientID uuid.UUID) ([]model.Income, error)
	ListOverdue(ctx context.Context) ([]model.Income, error)
	List(ctx context.Context, filter IncomeListFilter) ([]model.Income, int64, error)
	Update(ctx context.Context, income *model.Income) error
	SetVoided(ctx context.Context, id uuid.UUID, voided bool) error
}

type incomeRepository struct {
	db *gorm.DB
}

func NewIncomeRepository(db *gorm.DB) IncomeRepository {
	return &incomeRepository{db: db}
}

func (r *incomeRepository) Create(ctx context.Context, income *model.Income) error {
	return GetDB(ctx, r.db).Create(income).Error
}

func (r *incomeRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Income, error) {
	var income model.Income
	if err := GetDB(ctx, r.db).First(&income, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &income, nil
}

func (r *incomeRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Income, error) {
	var income model.Income
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&income).Error; err != nil {
		return nil, err
	}
	return &income, nil
}

func (r *incomeRepository) ListOutstandingByPayer(ctx context.Context, payerClientID uuid.UUID) ([]model.Income, error) {
	var incomes []model.Income
	err := GetDB(ctx, r.db).
		Where("payer_client_id = ? AND voided = false AND payment_status IN ?",
			payerClientID, []string{model.StatusPending, model.StatusPartial}).
		Order("due_date asc").
		Find(&incomes).Error
	if err != nil {
		return nil, err
	}
	return incomes, nil
}

func (r *incomeRepository) ListOverdue(ctx context.Context) ([]model.Income, error) {
	var incomes []model.Income
	err := GetDB(ctx, r.db).
		Where("voided = false AND payment_status IN ? AND due_date < CURRENT_DATE",
			[]string{model.StatusPending, model.StatusPartial}).
		Order("due_date asc").
		Find(&incomes).Error
	if err != nil {
		return nil, err
	}
	return incomes, nil
}

func (r *incomeRepository) List(ctx context.Context, filter IncomeListFilter) ([]model.Income, int64, error) {
	var incomes []model.Income
	var total int64

	db := GetDB(ctx, r.db)
	apply := func(q *gorm.DB) *gorm.DB {
		if filter.PayerClientID != nil {
			q = q.Where("payer_client_id = ?", *filter.PayerClientID)
		}
		if filter.ProjectID != nil {
			q = q.Where("project_id = ?", *filter.ProjectID)
		}
		if filter.Status != "" {
			q = q.Where("payment_status = ?", filter.Status)
		}
		if !filter.IncludeVoided {
			q = q.Where("voided = false")
		}
		return q
	}

	if err := apply(db.Model(&model.Income{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	query := apply(db.Preload("ServiceClient").Preload("PayerClient").Preload("Project"))
	if err := query.Order("service_date desc").Offset(offset).Limit(filter.Limit).Find(&incomes).Error; err != nil {
		return nil, 0, err
	}

	return incomes, total, nil
}

func (r *incomeRepository) Update(ctx context.Context, income *model.Income) error {
	return GetDB(ctx, r.db).Save(income).Error
}

func (r *incomeRepository) SetVoided(ctx context.Context, id uuid.UUID, voided bool) error {
	return GetDB(ctx, r.db).Model(&model.Income{}).Where("id = ?", id).Update("voided", voided).Error
}

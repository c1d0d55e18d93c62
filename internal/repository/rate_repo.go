package repository

import (
	"context"
	"time"

	"fieldops-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RateRepository interface {
	Create(ctx context.Context, rate *model.ClientRate) error
	// FindActiveByClient returns the single active schedule for a client,
	// or gorm.ErrRecordNotFound when none exists.
	FindActiveByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientRate, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, activeOnly bool) ([]model.ClientRate, error)
	// DeactivateForClient closes out every active schedule for the client,
	// stamping effective_to. Called inside the same transaction that
	// creates the replacement schedule.
	DeactivateForClient(ctx context.Context, clientID uuid.UUID, closedAt time.Time) error
}

type rateRepository struct {
	db *gorm.DB
}

func NewRateRepository(db *gorm.DB) RateRepository {
	return &rateRepository{db: db}
}

func (r *rateRepository) Create(ctx context.Context, rate *model.ClientRate) error {
	return GetDB(ctx, r.db).Create(rate).Error
}

func (r *rateRepository) FindActiveByClient(ctx context.Context, clientID uuid.UUID) (*model.ClientRate, error) {
	var rate model.ClientRate
	if err := GetDB(ctx, r.db).
		Where("client_id = ? AND active = true", clientID).
		Order("created_at desc").
		First(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *rateRepository) ListByClient(ctx context.Context, clientID uuid.UUID, activeOnly bool) ([]model.ClientRate, error) {
	var rates []model.ClientRate
	query := GetDB(ctx, r.db).Where("client_id = ?", clientID)
	if activeOnly {
		query = query.Where("active = true")
	}
	if err := query.Order("created_at desc").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *rateRepository) DeactivateForClient(ctx context.Context, clientID uuid.UUID, closedAt time.Time) error {
	return GetDB(ctx, r.db).Model(&model.ClientRate{}).
		Where("client_id = ? AND active = true", clientID).
		Updates(map[string]interface{}{"active": false, "effective_to": closedAt}).Error
}

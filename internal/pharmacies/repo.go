package pharmacies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thanhngodev/medigo-backend/pkg/db/models"
)

// Repository exposes pharmacy reads needed by the order flow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a pharmacies repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pharmacy).Error
	if err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

func (r *repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&pharmacy).Error
	if err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

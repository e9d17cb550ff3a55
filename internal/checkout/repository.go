package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ErrStaleAttempt reports that another request saved the attempt after it was
// loaded.
var ErrStaleAttempt = errors.New("checkout attempt changed concurrently")

// Repository persists checkout attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, attempt *models.CheckoutAttempt) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutAttempt, error)
	Save(ctx context.Context, attempt *models.CheckoutAttempt) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout attempt repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, attempt *models.CheckoutAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Save writes every column of the attempt, including cleared references, if
// the stored version still matches the loaded one. On success the attempt
// carries the new version.
func (r *repository) Save(ctx context.Context, attempt *models.CheckoutAttempt) error {
	loaded := attempt.Version
	attempt.Version = loaded + 1
	res := r.db.WithContext(ctx).
		Model(attempt).
		Where("version = ?", loaded).
		Select("*").
		Omit("created_at").
		Updates(attempt)
	switch {
	case res.Error != nil:
		attempt.Version = loaded
		return res.Error
	case res.RowsAffected == 0:
		attempt.Version = loaded
		return ErrStaleAttempt
	}
	return nil
}

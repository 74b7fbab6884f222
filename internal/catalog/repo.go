package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mentorahq/mentora-backend/pkg/db/models"
)

// Repository reads the purchasable catalog. Catalog writes happen in the
// platform's catalog service, not here.
type Repository interface {
	FindActiveDuration(ctx context.Context, durationID uuid.UUID) (*models.ProgramDuration, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindActiveDuration(ctx context.Context, durationID uuid.UUID) (*models.ProgramDuration, error) {
	var duration models.ProgramDuration
	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", durationID, true).
		First(&duration).Error
	if err != nil {
		return nil, err
	}
	return &duration, nil
}

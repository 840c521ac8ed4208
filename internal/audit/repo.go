package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists audit log rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByObject returns the history of one object, newest first.
func (r *Repository) ListByObject(ctx context.Context, modelName string, objectID uuid.UUID) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("model_name = ? AND object_id = ?", modelName, objectID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

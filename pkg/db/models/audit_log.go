package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type AuditLog struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Action    enums.AuditAction `gorm:"column:action;type:varchar(20);not null"`
	ModelName string            `gorm:"column:model_name;not null"`
	ObjectID  string            `gorm:"column:object_id;not null"`
	Details   json.RawMessage   `gorm:"column:details;type:jsonb"`
	IPAddress *string           `gorm:"column:ip_address"`
	UserAgent *string           `gorm:"column:user_agent"`
	RequestID *string           `gorm:"column:request_id"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

// Notification is an in-app message for one user. Delivery is fire and
// forget; rows are written by the notification worker, never inside a
// business transaction.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Message   string                 `gorm:"column:message;not null"`
	ActionURL *string                `gorm:"column:action_url"`
	Metadata  types.JSONMap          `gorm:"column:metadata;type:jsonb;serializer:json"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}

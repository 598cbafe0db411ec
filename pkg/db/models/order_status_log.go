package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// OrderStatusLog records every lifecycle transition, including admin
// overrides, for audit.
type OrderStatusLog struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;type:text;not null"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorRole  *enums.UserRole   `gorm:"column:actor_role;type:text"`
	Reason     *string           `gorm:"column:reason"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

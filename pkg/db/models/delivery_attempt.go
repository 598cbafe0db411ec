package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// DeliveryAttempt records one trip by a delivery partner for an order.
// Attempt #1 opens when the partner is assigned and closes at delivery.
type DeliveryAttempt struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID                   `gorm:"column:order_id;type:uuid;not null;index"`
	PartnerID     uuid.UUID                   `gorm:"column:partner_id;type:uuid;not null;index"`
	AttemptNumber int                         `gorm:"column:attempt_number;not null;default:1"`
	Status        enums.DeliveryAttemptStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Notes         *string                     `gorm:"column:notes"`
	StartedAt     time.Time                   `gorm:"column:started_at;not null"`
	CompletedAt   *time.Time                  `gorm:"column:completed_at"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryPartner mirrors the auth service's partner identity with the two
// flags order assignment checks. ID matches the partner's user ID.
type DeliveryPartner struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Phone     string    `gorm:"column:phone;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	Available bool      `gorm:"column:available;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

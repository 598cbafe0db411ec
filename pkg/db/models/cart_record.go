package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// CartRecord is a buyer's working cart. One active cart per buyer; it flips
// to converted when an order is created from it.
type CartRecord struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID   uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status    enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// StockReservation is a time-boxed hold on sellable quantity tied to one
// order. Confirmed and released are terminal.
type StockReservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity  decimal.Decimal         `gorm:"column:quantity;type:numeric(14,3);not null"`
	Status    enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

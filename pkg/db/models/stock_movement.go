package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/enums"
)

// StockMovement is an append-only ledger row recording every quantity change
// on a product. Quantity is signed: restocks positive, sales negative.
type StockMovement struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Type        enums.StockMovementType `gorm:"column:type;type:text;not null"`
	Quantity    decimal.Decimal         `gorm:"column:quantity;type:numeric(14,3);not null"`
	Reason      *string                 `gorm:"column:reason"`
	ReferenceID *uuid.UUID              `gorm:"column:reference_id;type:uuid"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

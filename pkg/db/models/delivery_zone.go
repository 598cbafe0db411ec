package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeliveryZone prices deliverability for one vendor/pincode pair. The cart
// aggregator consults it when a delivery address is supplied.
type DeliveryZone struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VendorID      uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_delivery_zones_vendor_pincode,priority:1"`
	Pincode       string          `gorm:"column:pincode;not null;uniqueIndex:idx_delivery_zones_vendor_pincode,priority:2"`
	DeliveryFee   decimal.Decimal `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	MinOrderValue decimal.Decimal `gorm:"column:min_order_value;type:numeric(12,2);not null;default:0"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

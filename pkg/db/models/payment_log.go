package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentLog is the append-only audit trail of payment state changes. The
// (event, gateway_payment_id) pair is unique so webhook replays insert
// nothing twice.
type PaymentLog struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID        uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;index"`
	Event            string          `gorm:"column:event;not null;uniqueIndex:idx_payment_logs_event_gw,priority:1"`
	GatewayPaymentID *string         `gorm:"column:gateway_payment_id;uniqueIndex:idx_payment_logs_event_gw,priority:2"`
	Payload          json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

package razorpay

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Gateway amounts travel in paise. Order totals in the rest of the codebase
// are rupee decimals with two places, so conversion lives here.
var paiseFactor = decimal.NewFromInt(100)

// ToPaise converts a rupee amount to the gateway's integer paise.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Mul(paiseFactor).Round(0).IntPart()
}

// FromPaise converts gateway paise back to a rupee decimal.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Div(paiseFactor)
}

// Order statuses reported by the gateway.
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"
)

// Payment statuses reported by the gateway.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// Refund statuses reported by the gateway.
const (
	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

type OrderCreateParams struct {
	AmountPaise int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

type Order struct {
	ID          string `json:"id"`
	AmountPaise int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
}

type Payment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	AmountPaise      int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

type CaptureParams struct {
	AmountPaise int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type RefundCreateParams struct {
	AmountPaise int64 `json:"amount"`
}

type Refund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	AmountPaise int64  `json:"amount"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// WebhookEvent is the envelope the gateway POSTs to the webhook endpoint.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity Payment `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity Refund `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// ParseWebhookEvent decodes a verified webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

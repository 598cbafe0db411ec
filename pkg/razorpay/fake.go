package razorpay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

// FakeGateway is an in-memory gateway for local development. Orders are
// created instantly, payments report captured, and refunds report processed.
// It never runs in production; NewGateway refuses to construct it there.
type FakeGateway struct {
	mu       sync.Mutex
	orders   map[string]*Order
	payments map[string]*Payment
}

// NewGateway returns the live client when credentials are configured, or the
// fake when they are absent, AllowFake is set, and the app is not production.
func NewGateway(ctx context.Context, appCfg config.AppConfig, cfg config.RazorpayConfig, logg *logger.Logger) (Gateway, error) {
	if cfg.KeyID != "" || cfg.KeySecret != "" {
		return NewClient(ctx, cfg, logg)
	}
	if !cfg.AllowFake {
		return nil, errKeyIDRequired
	}
	if appCfg.IsProd() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fake payment gateway is not allowed in production")
	}
	if logg != nil {
		logg.Warn(ctx, "razorpay credentials absent, using fake gateway")
	}
	return NewFakeGateway(), nil
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		orders:   map[string]*Order{},
		payments: map[string]*Payment{},
	}
}

func (f *FakeGateway) CreateOrder(_ context.Context, params OrderCreateParams) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := &Order{
		ID:          "order_fake_" + uuid.NewString(),
		AmountPaise: params.AmountPaise,
		Currency:    params.Currency,
		Receipt:     params.Receipt,
		Status:      OrderStatusCreated,
		CreatedAt:   time.Now().Unix(),
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *FakeGateway) FetchPayment(_ context.Context, gatewayPaymentID string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.payments[gatewayPaymentID]; ok {
		return p, nil
	}

	// Unknown ids are treated as captured test payments so checkout flows
	// can be exercised end to end without the gateway.
	p := &Payment{
		ID:        gatewayPaymentID,
		Status:    PaymentStatusCaptured,
		Currency:  "INR",
		Method:    "card",
		CreatedAt: time.Now().Unix(),
	}
	f.payments[gatewayPaymentID] = p
	return p, nil
}

func (f *FakeGateway) CapturePayment(_ context.Context, gatewayPaymentID string, params CaptureParams) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payments[gatewayPaymentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("fake gateway: unknown payment %s", gatewayPaymentID))
	}
	if p.Status != PaymentStatusAuthorized && p.Status != PaymentStatusCaptured {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("fake gateway: payment %s is %s, cannot capture", gatewayPaymentID, p.Status))
	}
	p.Status = PaymentStatusCaptured
	if params.AmountPaise > 0 {
		p.AmountPaise = params.AmountPaise
	}
	return p, nil
}

// SeedPayment registers a payment so FetchPayment returns it verbatim.
func (f *FakeGateway) SeedPayment(p Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[p.ID] = &p
}

func (f *FakeGateway) CreateRefund(_ context.Context, gatewayPaymentID string, params RefundCreateParams) (*Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.payments[gatewayPaymentID]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("fake gateway: unknown payment %s", gatewayPaymentID))
	}
	return &Refund{
		ID:          "rfnd_fake_" + uuid.NewString(),
		PaymentID:   gatewayPaymentID,
		AmountPaise: params.AmountPaise,
		Status:      RefundStatusProcessed,
		CreatedAt:   time.Now().Unix(),
	}, nil
}

func (f *FakeGateway) VerifyWebhook(body []byte, signature string) bool {
	return signature != ""
}

func (f *FakeGateway) VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return signature != ""
}

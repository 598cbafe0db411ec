package razorpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: "whsec",
		BaseURL:       srv.URL,
	}
	c, err := NewClient(context.Background(), cfg, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func TestNewClientRequiresCredentials(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})

	if _, err := NewClient(context.Background(), config.RazorpayConfig{KeySecret: "s", WebhookSecret: "w"}, logg); err == nil {
		t.Fatalf("expected error without key id")
	}
	if _, err := NewClient(context.Background(), config.RazorpayConfig{KeyID: "k", WebhookSecret: "w"}, logg); err == nil {
		t.Fatalf("expected error without key secret")
	}
	if _, err := NewClient(context.Background(), config.RazorpayConfig{KeyID: "k", KeySecret: "s"}, logg); err == nil {
		t.Fatalf("expected error without webhook secret")
	}
}

func TestCreateOrder(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var params OrderCreateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if params.AmountPaise != 24999 {
			t.Fatalf("expected 24999 paise, got %d", params.AmountPaise)
		}
		if params.Currency != "INR" {
			t.Fatalf("expected INR default, got %q", params.Currency)
		}

		json.NewEncoder(w).Encode(Order{
			ID:          "order_test123",
			AmountPaise: params.AmountPaise,
			Currency:    params.Currency,
			Receipt:     params.Receipt,
			Status:      OrderStatusCreated,
		})
	}))

	order, err := client.CreateOrder(context.Background(), OrderCreateParams{
		AmountPaise: ToPaise(mustDecimal(t, "249.99")),
		Receipt:     "ORD20260801ABCDEF",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_test123" || order.Status != OrderStatusCreated {
		t.Fatalf("unexpected order %+v", order)
	}
	if gotAuth == "" {
		t.Fatalf("expected basic auth header")
	}
}

func TestFetchPayment(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_abc" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Payment{
			ID:      "pay_abc",
			OrderID: "order_test123",
			Status:  PaymentStatusCaptured,
		})
	}))

	p, err := client.FetchPayment(context.Background(), "pay_abc")
	if err != nil {
		t.Fatalf("FetchPayment: %v", err)
	}
	if p.Status != PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", p.Status)
	}
}

func TestCapturePayment(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments/pay_abc/capture" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var params CaptureParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if params.AmountPaise != 24999 || params.Currency != "INR" {
			t.Fatalf("unexpected params %+v", params)
		}
		json.NewEncoder(w).Encode(Payment{
			ID:          "pay_abc",
			OrderID:     "order_test123",
			AmountPaise: params.AmountPaise,
			Status:      PaymentStatusCaptured,
		})
	}))

	p, err := client.CapturePayment(context.Background(), "pay_abc", CaptureParams{AmountPaise: 24999})
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if p.Status != PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", p.Status)
	}
}

func TestCreateRefund(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments/pay_abc/refund" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(Refund{
			ID:          "rfnd_1",
			PaymentID:   "pay_abc",
			AmountPaise: 5000,
			Status:      RefundStatusProcessed,
		})
	}))

	refund, err := client.CreateRefund(context.Background(), "pay_abc", RefundCreateParams{AmountPaise: 5000})
	if err != nil {
		t.Fatalf("CreateRefund: %v", err)
	}
	if refund.Status != RefundStatusProcessed {
		t.Fatalf("expected processed, got %s", refund.Status)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))

	_, err := client.CreateOrder(context.Background(), OrderCreateParams{AmountPaise: 1})
	if err == nil {
		t.Fatalf("expected error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestNewGatewayFallsBackToFake(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})

	gw, err := NewGateway(context.Background(), config.AppConfig{Env: "development"}, config.RazorpayConfig{AllowFake: true}, logg)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if _, ok := gw.(*FakeGateway); !ok {
		t.Fatalf("expected fake gateway, got %T", gw)
	}

	if _, err := NewGateway(context.Background(), config.AppConfig{Env: "production"}, config.RazorpayConfig{AllowFake: true}, logg); err == nil {
		t.Fatalf("expected fake gateway to be rejected in production")
	}
}

func TestFakeGatewayRoundTrip(t *testing.T) {
	fake := NewFakeGateway()
	ctx := context.Background()

	order, err := fake.CreateOrder(ctx, OrderCreateParams{AmountPaise: 10000, Currency: "INR"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != OrderStatusCreated {
		t.Fatalf("expected created, got %s", order.Status)
	}

	p, err := fake.FetchPayment(ctx, "pay_dev_1")
	if err != nil {
		t.Fatalf("FetchPayment: %v", err)
	}
	if p.Status != PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", p.Status)
	}

	refund, err := fake.CreateRefund(ctx, "pay_dev_1", RefundCreateParams{AmountPaise: 10000})
	if err != nil {
		t.Fatalf("CreateRefund: %v", err)
	}
	if refund.Status != RefundStatusProcessed {
		t.Fatalf("expected processed, got %s", refund.Status)
	}

	if _, err := fake.CreateRefund(ctx, "pay_unknown", RefundCreateParams{AmountPaise: 1}); err == nil {
		t.Fatalf("expected unknown payment refund to fail")
	}
}

package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

var (
	errKeyIDRequired         = errors.New("razorpay key id is required")
	errKeySecretRequired     = errors.New("razorpay key secret is required")
	errWebhookSecretRequired = errors.New("razorpay webhook secret is required")
	errLoggerRequired        = errors.New("razorpay logger is required")
)

// Gateway is the payment-gateway surface the payments service depends on.
// The HTTP client implements it against the live API; the fake implements it
// for local development.
type Gateway interface {
	CreateOrder(ctx context.Context, params OrderCreateParams) (*Order, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*Payment, error)
	CapturePayment(ctx context.Context, gatewayPaymentID string, params CaptureParams) (*Payment, error)
	CreateRefund(ctx context.Context, gatewayPaymentID string, params RefundCreateParams) (*Refund, error)
	VerifyWebhook(body []byte, signature string) bool
	VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// Client talks to the Razorpay REST API with basic auth and centralized
// logging and error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *logger.Logger
}

// NewClient validates the credentials and returns the live gateway client.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		logger:        logg,
	}

	logg.Info(ctx, "razorpay client initialized")
	return c, nil
}

func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*Order, error) {
	if params.Currency == "" {
		params.Currency = "INR"
	}
	c.log(ctx, "request", "create_order", map[string]any{
		"amount":   params.AmountPaise,
		"currency": params.Currency,
		"receipt":  params.Receipt,
	})

	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", params, &order); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_order", map[string]any{
		"gateway_order_id": order.ID,
		"status":           order.Status,
	})
	return &order, nil
}

func (c *Client) FetchPayment(ctx context.Context, gatewayPaymentID string) (*Payment, error) {
	c.log(ctx, "request", "fetch_payment", map[string]any{"gateway_payment_id": gatewayPaymentID})

	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+gatewayPaymentID, nil, &payment); err != nil {
		c.log(ctx, "error", "fetch_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "fetch_payment", map[string]any{
		"gateway_payment_id": payment.ID,
		"status":             payment.Status,
	})
	return &payment, nil
}

func (c *Client) CapturePayment(ctx context.Context, gatewayPaymentID string, params CaptureParams) (*Payment, error) {
	if params.Currency == "" {
		params.Currency = "INR"
	}
	c.log(ctx, "request", "capture_payment", map[string]any{
		"gateway_payment_id": gatewayPaymentID,
		"amount":             params.AmountPaise,
	})

	var payment Payment
	if err := c.do(ctx, http.MethodPost, "/payments/"+gatewayPaymentID+"/capture", params, &payment); err != nil {
		c.log(ctx, "error", "capture_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "capture_payment", map[string]any{
		"gateway_payment_id": payment.ID,
		"status":             payment.Status,
	})
	return &payment, nil
}

func (c *Client) CreateRefund(ctx context.Context, gatewayPaymentID string, params RefundCreateParams) (*Refund, error) {
	c.log(ctx, "request", "create_refund", map[string]any{
		"gateway_payment_id": gatewayPaymentID,
		"amount":             params.AmountPaise,
	})

	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/payments/"+gatewayPaymentID+"/refund", params, &refund); err != nil {
		c.log(ctx, "error", "create_refund", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_refund", map[string]any{
		"gateway_refund_id": refund.ID,
		"status":            refund.Status,
	})
	return &refund, nil
}

func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	return VerifyWebhookSignature(c.webhookSecret, body, signature)
}

func (c *Client) VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return VerifyPaymentSignature(c.keySecret, gatewayOrderID, gatewayPaymentID, signature)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "razorpay request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read razorpay response")
	}

	if resp.StatusCode >= 400 {
		return c.mapAPIError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode razorpay response")
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, raw []byte) error {
	desc := "razorpay api error"
	var payload apiError
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Description != "" {
		desc = payload.Error.Description
	}
	return pkgerrors.New(domainCodeForStatus(status), fmt.Sprintf("razorpay: %s (http %d)", desc, status))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("razorpay %s", phase))
	}
}

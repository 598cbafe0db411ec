package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/api/middleware"
	"github.com/kartmitra/kartmitra-backend/internal/orders"
	"github.com/kartmitra/kartmitra-backend/internal/payments"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/storage"
	"github.com/kartmitra/kartmitra-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test"})
}

func asBuyer(r *http.Request, buyerID uuid.UUID) *http.Request {
	ctx := middleware.WithActor(r.Context(), buyerID, enums.UserRoleBuyer, nil)
	return r.WithContext(ctx)
}

type fakeOrdersService struct {
	orders.Service

	created   *orders.CreateInput
	cancelled struct {
		orderID uuid.UUID
		reason  string
	}
}

func (f *fakeOrdersService) Create(_ context.Context, input orders.CreateInput) (*models.Order, error) {
	f.created = &input
	return &models.Order{}, nil
}

func (f *fakeOrdersService) Cancel(_ context.Context, orderID uuid.UUID, _ orders.Actor, reason string) (*models.Order, error) {
	f.cancelled.orderID = orderID
	f.cancelled.reason = reason
	return &models.Order{}, nil
}

func TestPlaceOrderCreatesFromContextBuyer(t *testing.T) {
	svc := &fakeOrdersService{}
	handler := PlaceOrder(svc, nil, testLogger())

	buyerID := uuid.New()
	body, _ := json.Marshal(map[string]any{
		"address": types.Address{
			Line1:      "12 MG Road",
			City:       "Pune",
			State:      "MH",
			PostalCode: "411001",
			Phone:      "9876543210",
		},
		"paymentMode": "cod",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler(rec, asBuyer(req, buyerID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if svc.created == nil {
		t.Fatal("service was not called")
	}
	if svc.created.BuyerID != buyerID {
		t.Fatalf("buyer = %s, want %s", svc.created.BuyerID, buyerID)
	}
	if svc.created.PaymentMode != enums.PaymentModeCOD {
		t.Fatalf("payment mode = %s", svc.created.PaymentMode)
	}
}

func TestPlaceOrderRejectsUnknownPaymentMode(t *testing.T) {
	svc := &fakeOrdersService{}
	handler := PlaceOrder(svc, nil, testLogger())

	body := `{"address":{"line1":"a","city":"b","state":"c","postalCode":"411001","phone":"9876543210"},"paymentMode":"cheque"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler(rec, asBuyer(req, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if svc.created != nil {
		t.Fatal("service should not be called for invalid payment mode")
	}
}

func TestCancelOrderRequiresReason(t *testing.T) {
	svc := &fakeOrdersService{}
	logg := testLogger()

	router := chi.NewRouter()
	router.Post("/api/v1/orders/{orderId}/cancel", CancelOrder(svc, nil, logg))

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", strings.NewReader(`{"reason":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asBuyer(req, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", strings.NewReader(`{"reason":"changed my mind"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asBuyer(req, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if svc.cancelled.orderID != orderID {
		t.Fatalf("cancelled order = %s, want %s", svc.cancelled.orderID, orderID)
	}
	if svc.cancelled.reason != "changed my mind" {
		t.Fatalf("reason = %q", svc.cancelled.reason)
	}
}

func TestVendorListOrdersRequiresVendorScope(t *testing.T) {
	handler := VendorListOrders(&fakeOrdersService{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendor/orders", nil)
	ctx := middleware.WithActor(req.Context(), uuid.New(), enums.UserRoleVendor, nil)
	rec := httptest.NewRecorder()
	handler(rec, req.WithContext(ctx))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestVendorListOrdersRejectsUnknownStatus(t *testing.T) {
	handler := VendorListOrders(&fakeOrdersService{}, testLogger())

	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendor/orders?status=shipped", nil)
	ctx := middleware.WithActor(req.Context(), uuid.New(), enums.UserRoleVendor, &vendorID)
	rec := httptest.NewRecorder()
	handler(rec, req.WithContext(ctx))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

type fakePaymentsService struct {
	payments.Service

	webhookBody      []byte
	webhookSignature string
}

func (f *fakePaymentsService) HandleWebhook(_ context.Context, body []byte, signature string) error {
	f.webhookBody = body
	f.webhookSignature = signature
	return nil
}

func TestRazorpayWebhookPassesRawBodyAndSignature(t *testing.T) {
	svc := &fakePaymentsService{}
	handler := RazorpayWebhook(svc, nil, testLogger())

	payload := `{"event":"payment.captured","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(payload))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if string(svc.webhookBody) != payload {
		t.Fatalf("body was altered before verification: %q", svc.webhookBody)
	}
	if svc.webhookSignature != "deadbeef" {
		t.Fatalf("signature = %q", svc.webhookSignature)
	}
}

func TestMediaUploadStoresValidatedImage(t *testing.T) {
	uploader := storage.NewMemoryUploader()
	handler := MediaUpload(uploader, 5, testLogger())

	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x00}, 32)...)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("kind", "returns"); err != nil {
		t.Fatal(err)
	}
	part, err := form.CreateFormFile("file", "evidence.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(png); err != nil {
		t.Fatal(err)
	}
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	handler(rec, asBuyer(req, uuid.New()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if uploader.Len() != 1 {
		t.Fatalf("stored objects = %d, want 1", uploader.Len())
	}
	if !strings.Contains(rec.Body.String(), "https://uploads.invalid/returns/") {
		t.Fatalf("response missing object url: %s", rec.Body.String())
	}
}

func TestMediaUploadRejectsNonImagePayload(t *testing.T) {
	uploader := storage.NewMemoryUploader()
	handler := MediaUpload(uploader, 5, testLogger())

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("kind", "products")
	part, _ := form.CreateFormFile("file", "notes.txt")
	part.Write([]byte("plain text, not an image"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	handler(rec, asBuyer(req, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if uploader.Len() != 0 {
		t.Fatalf("nothing should be stored, got %d objects", uploader.Len())
	}
}

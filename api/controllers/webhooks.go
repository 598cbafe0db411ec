package controllers

import (
	"io"
	"net/http"

	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/internal/payments"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/metrics"
)

const maxWebhookBody = 1 << 20

// RazorpayWebhook ingests gateway events. The raw body is passed through
// untouched so the HMAC check covers exactly the bytes Razorpay signed.
func RazorpayWebhook(svc payments.Service, m *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			m.IncWebhook("rejected")
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read webhook body"))
			return
		}

		signature := r.Header.Get("X-Razorpay-Signature")
		if err := svc.HandleWebhook(r.Context(), body, signature); err != nil {
			m.IncWebhook("rejected")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		m.IncWebhook("processed")
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

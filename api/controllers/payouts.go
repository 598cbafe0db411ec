package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/kartmitra/kartmitra-backend/api/responses"
	"github.com/kartmitra/kartmitra-backend/api/validators"
	"github.com/kartmitra/kartmitra-backend/internal/payouts"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

type generatePayoutsRequest struct {
	PeriodEnd string `json:"periodEnd"`
}

type processPayoutRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

type failPayoutRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// VendorEarnings previews the vendor's commission math for the settlement
// window closing now, before any payout row exists.
func VendorEarnings(svc payouts.Service, periodDays int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := resolvePeriod(r.URL.Query().Get("periodEnd"), periodDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		earnings, err := svc.CalculateEarnings(r.Context(), vendorID, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, earnings)
	}
}

// VendorListPayouts returns the vendor's payout history.
func VendorListPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := vendorScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForVendor(r.Context(), vendorID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// VendorPayoutDetail returns one payout with its line breakdown.
func VendorPayoutDetail(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := pathUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// AdminGeneratePayouts creates pending payouts for every vendor with
// deliveries in the period. The cron job runs this on schedule; the endpoint
// exists for manual reruns.
func AdminGeneratePayouts(svc payouts.Service, periodDays int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generatePayoutsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := resolvePeriod(req.PeriodEnd, periodDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.GeneratePayoutBatch(r.Context(), period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"payoutsCreated": created,
			"periodStart":    period.Start,
			"periodEnd":      period.End,
		})
	}
}

// AdminProcessPayout marks a payout paid with the bank transfer reference.
func AdminProcessPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := pathUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req processPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.ProcessPayout(r.Context(), payoutID, strings.TrimSpace(req.TransactionID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// AdminFailPayout records a failed transfer so the payout can be retried.
func AdminFailPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := pathUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req failPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.MarkFailed(r.Context(), payoutID, strings.TrimSpace(req.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// resolvePeriod derives the settlement window closing at periodEnd, or at
// the current day when periodEnd is empty.
func resolvePeriod(periodEnd string, periodDays int) (payouts.Period, error) {
	end := time.Now().UTC()
	if raw := strings.TrimSpace(periodEnd); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return payouts.Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "periodEnd must be YYYY-MM-DD")
		}
		end = parsed
	}
	return payouts.PeriodEnding(end, periodDays), nil
}

package billing

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/billing-bridge/internal/common"
	"github.com/noah-isme/billing-bridge/internal/obs"
)

// Webhook processes Billplz payment callbacks: signature verification first,
// then the idempotent state transition. Verification is always enforced; there
// is no debug bypass.
type Webhook struct {
	Svc       *Service
	Verifier  Verifier
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle implements the callback endpoint. Every failure is logged with
// structured context; unknown bill ids are acknowledged with 200 so the
// provider does not retry indefinitely.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BILLING_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.count("invalid_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	cb, err := ParseCallback(r.Header.Get("Content-Type"), body)
	if err != nil {
		h.count("invalid_body")
		if errors.Is(err, ErrEmptyBody) {
			common.JSONError(w, http.StatusBadRequest, "EMPTY_BODY", "callback body is empty", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to decode payload", nil)
		return
	}

	signature := SignatureFromRequest(r)
	if !h.Verifier.Verify(cb.Fields(), signature) {
		h.Logger.Warn().
			Str("bill_id", cb.ID).
			Str("collection_id", cb.CollectionID).
			Bool("signature_present", signature != "").
			Msg("webhook signature rejected")
		h.count("invalid_signature")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:billplz:%s", common.Sha256Hex(string(body)))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			h.count("replay")
			common.JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
	}

	result, err := h.Svc.ApplyWebhook(r.Context(), cb)
	if err != nil {
		if errors.Is(err, ErrMissingBillID) {
			h.count("missing_bill_id")
			common.JSONError(w, http.StatusBadRequest, "MISSING_BILL_ID", "callback is missing the bill id", nil)
			return
		}
		reqID := middleware.GetReqID(r.Context())
		h.Logger.Error().Err(err).
			Str("bill_id", cb.ID).
			Str("request_id", reqID).
			Msg("webhook settlement failed")
		h.count("store_error")
		common.JSONError(w, http.StatusInternalServerError, "SETTLEMENT_ERROR", "unable to update transaction", map[string]any{"requestId": reqID})
		return
	}

	switch {
	case !result.Matched:
		h.count("unmatched")
	case result.Conflict:
		h.count("conflict")
	default:
		h.count("applied")
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"matched": result.Matched,
		"applied": result.Applied,
		"status":  string(result.Status),
	})
}

func (h Webhook) count(result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	obs.PaymentWebhookTotal.WithLabelValues("billplz", result).Inc()
}

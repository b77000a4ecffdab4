package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/billing-bridge/internal/common"
	"github.com/noah-isme/billing-bridge/internal/obs"
)

// Handler exposes the bill-creation and transaction-lookup endpoints.
type Handler struct {
	Svc               *Service
	Validate          *validator.Validate
	DefaultCollection string
}

type createBillReq struct {
	UserID       string `json:"userId" validate:"required"`
	ServiceType  string `json:"serviceType" validate:"required"`
	Description  string `json:"description" validate:"required"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required"`
	CollectionID string `json:"collectionId,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty" validate:"omitempty,url"`
}

type createBillResp struct {
	TransactionID string `json:"transactionId"`
	BillID        string `json:"billId"`
	URL           string `json:"url"`
	Status        string `json:"status"`
}

// Create opens a Billplz bill and records the pending transaction.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BILLING_NOT_CONFIGURED", "billing handler unavailable", nil)
		return
	}
	var req createBillReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
			return
		}
	}
	collection := strings.TrimSpace(req.CollectionID)
	if collection == "" {
		collection = h.DefaultCollection
	}
	tx, err := h.Svc.CreateTransaction(r.Context(), CreateTransactionInput{
		UserID:       req.UserID,
		ServiceType:  req.ServiceType,
		Description:  req.Description,
		Amount:       req.Amount,
		CollectionID: collection,
		Email:        req.Email,
		Name:         req.Name,
		RedirectURL:  req.RedirectURL,
	})
	if err != nil {
		countBillCreate("error")
		if errors.Is(err, ErrDuplicateBill) {
			common.JSONError(w, http.StatusConflict, "DUPLICATE_BILL", "bill id already recorded", nil)
			return
		}
		common.JSONError(w, http.StatusBadGateway, "BILL_CREATE_FAILED", err.Error(), nil)
		return
	}
	countBillCreate("success")
	common.JSON(w, http.StatusCreated, createBillResp{
		TransactionID: tx.ID,
		BillID:        tx.Billplz.BillID,
		URL:           tx.Billplz.URL,
		Status:        string(tx.Status),
	})
}

// Get returns a transaction by internal id for status polling.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BILLING_NOT_CONFIGURED", "billing handler unavailable", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "transactionId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "transactionId is required", nil)
		return
	}
	tx, err := h.Svc.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "TRANSACTION_FETCH_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, tx)
}

func countBillCreate(result string) {
	if obs.BillCreateTotal == nil {
		return
	}
	obs.BillCreateTotal.WithLabelValues("billplz", result).Inc()
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BillCreator abstracts the outbound Billplz call so the service can be tested
// without the network.
type BillCreator interface {
	CreateBill(ctx context.Context, req CreateBillRequest) (CreateBillResponse, error)
}

// Service owns transaction creation and the webhook state transition. The
// persistence handle is injected; connection lifecycle belongs to the caller.
type Service struct {
	Store       Store
	Bills       BillCreator
	CallbackURL string
	RedirectURL string
	Logger      zerolog.Logger
}

// CreateTransactionInput is the domain-level request for opening a payment.
type CreateTransactionInput struct {
	UserID       string
	ServiceType  string
	Description  string
	Amount       int64
	CollectionID string
	Email        string
	Name         string
	RedirectURL  string
}

// CreateTransaction opens a bill with Billplz and records the pending
// transaction linked to the returned bill id.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput) (Transaction, error) {
	var zero Transaction
	if s == nil || s.Store == nil || s.Bills == nil {
		return zero, errors.New("billing: service not configured")
	}
	if in.Amount <= 0 {
		return zero, errors.New("billing: amount must be positive")
	}
	redirect := in.RedirectURL
	if redirect == "" {
		redirect = s.RedirectURL
	}
	bill, err := s.Bills.CreateBill(ctx, CreateBillRequest{
		CollectionID: in.CollectionID,
		Email:        in.Email,
		Name:         in.Name,
		Amount:       in.Amount,
		Description:  in.Description,
		CallbackURL:  s.CallbackURL,
		RedirectURL:  redirect,
	})
	if err != nil {
		return zero, err
	}
	if bill.Amount > 0 && bill.Amount != in.Amount {
		return zero, fmt.Errorf("billing: provider amount %d does not match requested %d", bill.Amount, in.Amount)
	}

	tx := Transaction{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		ServiceType: in.ServiceType,
		Description: in.Description,
		Amount:      in.Amount,
		Status:      StatusPending,
		Billplz: Bill{
			BillID: bill.ID,
			URL:    bill.URL,
		},
	}
	if err := s.Store.Insert(ctx, tx); err != nil {
		return zero, err
	}
	s.Logger.Info().
		Str("transaction_id", tx.ID).
		Str("bill_id", tx.Billplz.BillID).
		Int64("amount", tx.Amount).
		Msg("transaction created")
	return tx, nil
}

// GetTransaction returns the stored transaction by internal id.
func (s *Service) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	if s == nil || s.Store == nil {
		return Transaction{}, errors.New("billing: service not configured")
	}
	return s.Store.GetByID(ctx, strings.TrimSpace(id))
}

// WebhookResult reports what a callback did to the stored transaction.
type WebhookResult struct {
	// Matched is false when no transaction carries the callback's bill id.
	Matched bool
	// Applied is true when the conditional update landed, including the
	// idempotent redelivery of an outcome the row already carries.
	Applied bool
	// Conflict is true when the transaction already reached a different
	// terminal status; the first outcome is kept and the callback recorded
	// only in the logs.
	Conflict bool
	// Status is the outcome derived from the callback's paid field.
	Status Status
}

// ApplyWebhook maps a verified callback to a transaction status and applies it
// as one atomic conditional update keyed by the external bill id. Signature
// verification is the transport layer's job; callers must not pass unverified
// callbacks.
//
// The provider sends paid as a stringified boolean: the literal "true" selects
// the paid outcome, every other value fails the transaction.
func (s *Service) ApplyWebhook(ctx context.Context, cb Callback) (WebhookResult, error) {
	var zero WebhookResult
	if s == nil || s.Store == nil {
		return zero, errors.New("billing: service not configured")
	}
	if strings.TrimSpace(cb.ID) == "" {
		return zero, ErrMissingBillID
	}

	target := StatusFailed
	if cb.Paid == "true" {
		target = StatusPaid
	}
	paidAmount, _ := strconv.ParseInt(strings.TrimSpace(cb.PaidAmount), 10, 64)

	matched, err := s.Store.SettleByBillID(ctx, SettleParams{
		BillID:         cb.ID,
		TargetStatus:   target,
		PaidAt:         cb.PaidAt,
		PaidAmount:     paidAmount,
		WebhookPayload: cb.Raw,
	})
	if err != nil {
		return zero, err
	}
	if matched > 0 {
		s.Logger.Info().
			Str("bill_id", cb.ID).
			Str("status", string(target)).
			Str("paid", cb.Paid).
			Msg("transaction settled")
		return WebhookResult{Matched: true, Applied: true, Status: target}, nil
	}

	existing, err := s.Store.GetByBillID(ctx, cb.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Bill creation and webhook delivery are not causally ordered;
			// the callback may outrun the creation flow. Acknowledge so the
			// provider stops retrying.
			s.Logger.Warn().
				Str("bill_id", cb.ID).
				Msg("webhook for unknown bill id")
			return WebhookResult{Matched: false, Status: target}, nil
		}
		return zero, err
	}
	s.Logger.Warn().
		Str("bill_id", cb.ID).
		Str("stored_status", string(existing.Status)).
		Str("callback_status", string(target)).
		Msg("conflicting outcome for settled transaction, keeping first")
	return WebhookResult{Matched: true, Conflict: true, Status: target}, nil
}

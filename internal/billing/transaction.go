package billing

import (
	"errors"
	"time"
)

// Status enumerates the lifecycle of a transaction. Transitions are one-way:
// once a transaction is paid or failed it never returns to pending.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// ErrNotFound is returned by stores when no transaction matches the lookup key.
var ErrNotFound = errors.New("billing: transaction not found")

// ErrDuplicateBill is returned when an insert would reuse an existing bill id.
var ErrDuplicateBill = errors.New("billing: bill id already linked to a transaction")

// ErrMissingBillID is returned when a webhook callback carries no bill identifier.
var ErrMissingBillID = errors.New("billing: callback missing bill id")

// Bill captures the provider-side half of a transaction. BillID is assigned by
// Billplz at creation and is the only key webhook callbacks can match on.
type Bill struct {
	BillID         string `json:"billId"`
	URL            string `json:"url,omitempty"`
	PaidAt         string `json:"paidAt,omitempty"`
	PaidAmount     int64  `json:"paidAmount,omitempty"`
	WebhookPayload []byte `json:"-"`
}

// Transaction is the internal record of a payment attempt. It is created by
// the bill-creation flow and mutated only by the webhook flow afterwards.
// ID, UserID, ServiceType, Description, Amount and Bill.BillID are immutable
// once set.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ServiceType string    `json:"serviceType"`
	Description string    `json:"description,omitempty"`
	Amount      int64     `json:"amount"`
	Status      Status    `json:"status"`
	Billplz     Bill      `json:"billplz"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

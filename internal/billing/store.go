package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettleParams describes the single conditional write the webhook flow issues.
// TargetStatus must be a terminal status; the update only lands when the row
// is still pending or already carries the same terminal status, which makes
// redelivery of the same outcome idempotent and refuses conflicting outcomes.
type SettleParams struct {
	BillID         string
	TargetStatus   Status
	PaidAt         string
	PaidAmount     int64
	WebhookPayload []byte
}

// Store is the persistence collaborator for transactions. Implementations must
// make SettleByBillID a single atomic filter+update and report the match count.
type Store interface {
	Insert(ctx context.Context, tx Transaction) error
	GetByID(ctx context.Context, id string) (Transaction, error)
	GetByBillID(ctx context.Context, billID string) (Transaction, error)
	SettleByBillID(ctx context.Context, arg SettleParams) (int64, error)
}

// PGStore implements Store on a pgx connection pool.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertTransactionSQL = `
INSERT INTO transactions (id, user_id, service_type, description, amount, status, bill_id, bill_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`

// Insert stores a freshly created transaction. A reused bill id surfaces as
// ErrDuplicateBill so callers can distinguish it from infrastructure failures.
func (s PGStore) Insert(ctx context.Context, tx Transaction) error {
	_, err := s.Pool.Exec(ctx, insertTransactionSQL,
		tx.ID, tx.UserID, tx.ServiceType, tx.Description, tx.Amount,
		string(tx.Status), tx.Billplz.BillID, tx.Billplz.URL,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateBill
		}
		return err
	}
	return nil
}

const selectTransactionSQL = `
SELECT id, user_id, service_type, description, amount, status, bill_id, bill_url,
       paid_at, paid_amount, webhook_payload, created_at, updated_at
FROM transactions`

// GetByID loads a transaction by its internal identifier.
func (s PGStore) GetByID(ctx context.Context, id string) (Transaction, error) {
	row := s.Pool.QueryRow(ctx, selectTransactionSQL+" WHERE id = $1", id)
	return scanTransaction(row)
}

// GetByBillID loads a transaction by the external bill identifier.
func (s PGStore) GetByBillID(ctx context.Context, billID string) (Transaction, error) {
	row := s.Pool.QueryRow(ctx, selectTransactionSQL+" WHERE bill_id = $1", billID)
	return scanTransaction(row)
}

const settleSQL = `
UPDATE transactions
SET status = $2,
    paid_at = $3,
    paid_amount = $4,
    webhook_payload = $5,
    updated_at = now()
WHERE bill_id = $1
  AND (status = 'pending' OR status = $2)`

// SettleByBillID applies the webhook outcome as one conditional update and
// returns the number of rows matched. Zero means either no transaction carries
// the bill id or the transaction already reached a different terminal status;
// callers disambiguate with GetByBillID.
func (s PGStore) SettleByBillID(ctx context.Context, arg SettleParams) (int64, error) {
	tag, err := s.Pool.Exec(ctx, settleSQL,
		arg.BillID, string(arg.TargetStatus),
		textOrNull(arg.PaidAt), int8OrNull(arg.PaidAmount), arg.WebhookPayload,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx         Transaction
		status     string
		paidAt     pgtype.Text
		paidAmount pgtype.Int8
		payload    []byte
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.ServiceType, &tx.Description, &tx.Amount,
		&status, &tx.Billplz.BillID, &tx.Billplz.URL,
		&paidAt, &paidAmount, &payload, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	tx.Status = Status(status)
	if paidAt.Valid {
		tx.Billplz.PaidAt = paidAt.String
	}
	if paidAmount.Valid {
		tx.Billplz.PaidAmount = paidAmount.Int64
	}
	tx.Billplz.WebhookPayload = payload
	tx.CreatedAt = createdAt
	tx.UpdatedAt = updatedAt
	return tx, nil
}

func textOrNull(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func int8OrNull(value int64) pgtype.Int8 {
	return pgtype.Int8{Int64: value, Valid: value > 0}
}

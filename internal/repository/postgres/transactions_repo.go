package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

func NewTransactions(pool *pgxpool.Pool) repository.Transactions {
	return &transactionsRepo{pool: pool}
}

const txnColumns = `id, user_id, type, amount::text, status, phone_number, account_reference,
       provider_checkout_request_id, provider_merchant_request_id, provider_conversation_id,
       failure_reason, provider_result, created_at, updated_at, completed_at`

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = models.TxnPending
	}
	const q = `
INSERT INTO transactions (
  id, user_id, type, amount, status, phone_number, account_reference,
  provider_checkout_request_id, provider_merchant_request_id, provider_conversation_id
) VALUES ($1,$2,$3,$4::numeric,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),NULLIF($10,''))
RETURNING ` + txnColumns
	row := r.pool.QueryRow(ctx, q,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount.String(), string(tx.Status), tx.PhoneNumber, tx.AccountReference,
		tx.CheckoutRequestID, tx.MerchantRequestID, tx.ConversationID,
	)
	return scanTransaction(row)
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id=$1`, id))
}

func (r *transactionsRepo) FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+`
		   FROM transactions
		  WHERE provider_checkout_request_id=$1
		  ORDER BY created_at
		  LIMIT 1`, id))
}

func (r *transactionsRepo) FindByConversationID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txnColumns+`
		   FROM transactions
		  WHERE provider_conversation_id=$1
		  ORDER BY created_at
		  LIMIT 1`, id))
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txnColumns+`
		   FROM transactions
		  WHERE user_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) Settle(ctx context.Context, s models.Settlement) (bool, error) {
	applied := false
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var result any
		if len(s.ProviderResult) > 0 {
			result = []byte(s.ProviderResult)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE transactions
			    SET status = $2,
			        failure_reason = NULLIF($3, ''),
			        provider_result = COALESCE($4::jsonb, provider_result),
			        updated_at = $5,
			        completed_at = CASE WHEN $2 = 'completed' THEN $5 ELSE completed_at END
			  WHERE id = $1
			    AND ($6::bool = false OR status = 'pending')`,
			s.TransactionID, string(s.Status), s.FailureReason, result, s.At, s.OnlyIfPending,
		)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id=$1)`, s.TransactionID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("settle %s: %w", s.TransactionID, repository.ErrNotFound)
			}
			return nil
		}
		if s.Credit != nil {
			if err := incrementBalance(ctx, tx, *s.Credit); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// WithTx runs fn inside one read-committed database transaction. Settle
// only issues single-row UPDATEs whose predicates and increments are
// re-evaluated on the locked row, so concurrent settlements of one user
// queue behind each other instead of failing with a serialization error.
func (r *transactionsRepo) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		tx                                   models.Transaction
		amount                               string
		typ, status                          string
		phone, ref, checkout, merchant, conv *string
		reason                               *string
		result                               []byte
	)
	err := row.Scan(&tx.ID, &tx.UserID, &typ, &amount, &status, &phone, &ref,
		&checkout, &merchant, &conv, &reason, &result, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Transaction{}, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}
	tx.Type = models.TransactionType(typ)
	tx.Status = models.TransactionStatus(status)
	tx.PhoneNumber = deref(phone)
	tx.AccountReference = deref(ref)
	tx.CheckoutRequestID = deref(checkout)
	tx.MerchantRequestID = deref(merchant)
	tx.ConversationID = deref(conv)
	tx.FailureReason = deref(reason)
	if len(result) > 0 {
		tx.ProviderResult = json.RawMessage(result)
	}
	return tx, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

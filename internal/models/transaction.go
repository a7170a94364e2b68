package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	// TxnDeposit is a payment-in (STK push) transaction.
	TxnDeposit TransactionType = "deposit"
	// TxnWithdrawal is a payment-out (B2C) transaction, debited at initiation.
	TxnWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TxnPending   TransactionStatus = "pending"
	TxnCompleted TransactionStatus = "completed"
	TxnFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool { return s == TxnCompleted || s == TxnFailed }

type Transaction struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Type              TransactionType   `json:"type"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	PhoneNumber       string            `json:"phone_number,omitempty"`
	AccountReference  string            `json:"account_reference,omitempty"`
	CheckoutRequestID string            `json:"provider_checkout_request_id,omitempty"`
	MerchantRequestID string            `json:"provider_merchant_request_id,omitempty"`
	ConversationID    string            `json:"provider_conversation_id,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	ProviderResult    json.RawMessage   `json:"provider_result,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// Settlement is one terminal transition applied by the store as a single unit:
// the transaction update and, when Credit is set, the owner's balance increment.
type Settlement struct {
	TransactionID  string
	Status         TransactionStatus
	FailureReason  string
	ProviderResult json.RawMessage
	At             time.Time

	// Credit, when non-nil, is added to the owner's total balance.
	Credit *BalanceCredit

	// OnlyIfPending skips the settlement when the transaction already left pending.
	OnlyIfPending bool
}

type BalanceCredit struct {
	UserID string
	Amount decimal.Decimal
}

// SettlementEvent is published after a settlement is committed.
type SettlementEvent struct {
	TransactionID string            `json:"transaction_id"`
	UserID        string            `json:"user_id"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceDelta  decimal.Decimal   `json:"balance_delta"`
	CorrelationID string            `json:"correlation_id"`
	ResultCode    int               `json:"result_code"`
	ResultDesc    string            `json:"result_desc"`
	SettledAt     time.Time         `json:"settled_at"`
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
	"github.com/baharkarakas/mpesa-backend/internal/repository/memory"
)

var settledAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []models.SettlementEvent
}

func (r *recordingSink) Dispatch(ev models.SettlementEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fixture struct {
	store memory.Repositories
	sink  *recordingSink
	svc   *ReconcileService
	user  models.User
}

func newFixture(t *testing.T, balance string, opts ...ReconcileOption) fixture {
	t.Helper()
	store := memory.NewRepositories()
	u, err := store.Users.Create(context.Background(), models.User{ID: "u-1", TotalBalance: decimal.RequireFromString(balance)})
	require.NoError(t, err)
	sink := &recordingSink{}
	opts = append([]ReconcileOption{WithReconcileClock(func() time.Time { return settledAt })}, opts...)
	return fixture{
		store: store,
		sink:  sink,
		svc:   NewReconcileService(store.Transactions, store.AuditLogs, sink, opts...),
		user:  u,
	}
}

func (f fixture) pending(t *testing.T, txn models.Transaction) models.Transaction {
	t.Helper()
	txn.UserID = f.user.ID
	txn.Status = models.TxnPending
	created, err := f.store.Transactions.Create(context.Background(), txn)
	require.NoError(t, err)
	return created
}

func (f fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := f.store.Users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u.TotalBalance
}

func (f fixture) txn(t *testing.T, id string) models.Transaction {
	t.Helper()
	got, err := f.store.Transactions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return got
}

func stkCallback(checkoutID string, code int, desc string) mpesa.STKCallback {
	raw, _ := json.Marshal(map[string]any{
		"Body": map[string]any{"stkCallback": map[string]any{
			"CheckoutRequestID": checkoutID,
			"ResultCode":        code,
			"ResultDesc":        desc,
		}},
	})
	return mpesa.STKCallback{CheckoutRequestID: checkoutID, ResultCode: code, ResultDesc: desc, Raw: raw}
}

func b2cResult(conversationID string, code int, desc string) mpesa.B2CResult {
	raw, _ := json.Marshal(map[string]any{
		"Result": map[string]any{
			"ConversationID": conversationID,
			"ResultCode":     code,
			"ResultDesc":     desc,
		},
	})
	return mpesa.B2CResult{ConversationID: conversationID, ResultCode: code, ResultDesc: desc, Raw: raw}
}

func TestSTKCallback_SuccessCompletesAndCredits(t *testing.T) {
	f := newFixture(t, "1000")
	txn := f.pending(t, models.Transaction{Type: models.TxnDeposit, Amount: decimal.NewFromInt(500), CheckoutRequestID: "abc"})

	cb := stkCallback("abc", 0, "The service request is processed successfully.")
	out, err := f.svc.HandleSTKCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)

	got := f.txn(t, txn.ID)
	assert.Equal(t, models.TxnCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, settledAt.Equal(*got.CompletedAt))
	assert.JSONEq(t, string(cb.Raw), string(got.ProviderResult))
	assert.True(t, decimal.NewFromInt(1500).Equal(f.balance(t)), "balance %s", f.balance(t))

	require.Len(t, f.sink.events, 1)
	ev := f.sink.events[0]
	assert.Equal(t, txn.ID, ev.TransactionID)
	assert.Equal(t, models.TxnCompleted, ev.Status)
	assert.True(t, decimal.NewFromInt(500).Equal(ev.BalanceDelta))
	assert.Equal(t, "abc", ev.CorrelationID)
}

func TestSTKCallback_FailureLeavesBalance(t *testing.T) {
	f := newFixture(t, "1000")
	txn := f.pending(t, models.Transaction{Type: models.TxnDeposit, Amount: decimal.NewFromInt(500), CheckoutRequestID: "abc"})

	out, err := f.svc.HandleSTKCallback(context.Background(), stkCallback("abc", 1032, "Request cancelled by user"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out)

	got := f.txn(t, txn.ID)
	assert.Equal(t, models.TxnFailed, got.Status)
	assert.Equal(t, "Request cancelled by user", got.FailureReason)
	assert.Nil(t, got.CompletedAt)
	assert.NotEmpty(t, got.ProviderResult)
	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(t)))

	require.Len(t, f.sink.events, 1)
	assert.True(t, f.sink.events[0].BalanceDelta.IsZero())
}

func TestSTKCallback_NoMatchIsNoop(t *testing.T) {
	f := newFixture(t, "1000")
	txn := f.pending(t, models.Transaction{Type: models.TxnDeposit, Amount: decimal.NewFromInt(500), CheckoutRequestID: "abc"})

	out, err := f.svc.HandleSTKCallback(context.Background(), stkCallback("zzz", 0, "ok"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, out)

	assert.Equal(t, models.TxnPending, f.txn(t, txn.ID).Status)
	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(t)))
	assert.Empty(t, f.sink.events)

	entries := f.store.AuditLogs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "stk_no_match", entries[0].Action)
}

func TestSTKCallback_ReplayWithoutGuardCreditsTwice(t *testing.T) {
	f := newFixture(t, "1000")
	f.pending(t, models.Transaction{Type: models.TxnDeposit, Amount: decimal.NewFromInt(500), CheckoutRequestID: "abc"})

	for i := 0; i < 2; i++ {
		out, err := f.svc.HandleSTKCallback(context.Background(), stkCallback("abc", 0, "ok"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, out)
	}
	assert.True(t, decimal.NewFromInt(2000).Equal(f.balance(t)))
}

func TestSTKCallback_ReplayWithGuardIsSkipped(t *testing.T) {
	f := newFixture(t, "1000", WithRequirePending(true))
	f.pending(t, models.Transaction{Type: models.TxnDeposit, Amount: decimal.NewFromInt(500), CheckoutRequestID: "abc"})

	out, err := f.svc.HandleSTKCallback(context.Background(), stkCallback("abc", 0, "ok"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)

	out, err = f.svc.HandleSTKCallback(context.Background(), stkCallback("abc", 0, "ok"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)

	assert.True(t, decimal.NewFromInt(1500).Equal(f.balance(t)))
	assert.Len(t, f.sink.events, 1)
}

func TestSTKCallback_MissingUserKeepsPending(t *testing.T) {
	store := memory.NewRepositories()
	ctx := context.Background()
	_, err := store.Users.Create(ctx, models.User{ID: "u-1"})
	require.NoError(t, err)

	// The owner reference points at a user the store does not know.
	trx := &orphanTransactions{Transactions: store.Transactions, userID: "ghost"}
	txn, err := store.Transactions.Create(ctx, models.Transaction{
		UserID: "u-1", Type: models.TxnDeposit, Amount: decimal.NewFromInt(500), CheckoutRequestID: "abc",
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	svc := NewReconcileService(trx, store.AuditLogs, sink)
	_, err = svc.HandleSTKCallback(ctx, stkCallback("abc", 0, "ok"))
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrUserNotFound)

	got, err := store.Transactions.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxnPending, got.Status)
	assert.Empty(t, sink.events)
}

// orphanTransactions rewrites the owner of every looked-up transaction.
type orphanTransactions struct {
	repo.Transactions
	userID string
}

func (o *orphanTransactions) FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error) {
	t, err := o.Transactions.FindByCheckoutRequestID(ctx, id)
	t.UserID = o.userID
	return t, err
}

func TestB2CResult_SuccessKeepsBalance(t *testing.T) {
	f := newFixture(t, "700")
	txn := f.pending(t, models.Transaction{Type: models.TxnWithdrawal, Amount: decimal.NewFromInt(300), ConversationID: "conv-1"})

	out, err := f.svc.HandleB2CResult(context.Background(), b2cResult("conv-1", 0, "ok"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)

	got := f.txn(t, txn.ID)
	assert.Equal(t, models.TxnCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.True(t, decimal.NewFromInt(700).Equal(f.balance(t)))
}

func TestB2CResult_FailureRefunds(t *testing.T) {
	f := newFixture(t, "700")
	txn := f.pending(t, models.Transaction{Type: models.TxnWithdrawal, Amount: decimal.NewFromInt(300), ConversationID: "conv-1"})

	out, err := f.svc.HandleB2CResult(context.Background(), b2cResult("conv-1", 2001, "The initiator information is invalid."))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out)

	got := f.txn(t, txn.ID)
	assert.Equal(t, models.TxnFailed, got.Status)
	assert.Equal(t, "The initiator information is invalid.", got.FailureReason)
	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(t)))

	require.Len(t, f.sink.events, 1)
	assert.True(t, decimal.NewFromInt(300).Equal(f.sink.events[0].BalanceDelta))
}

func TestB2CResult_NoMatchIsNoop(t *testing.T) {
	f := newFixture(t, "700")
	out, err := f.svc.HandleB2CResult(context.Background(), b2cResult("unknown", 0, "ok"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, out)
	assert.True(t, decimal.NewFromInt(700).Equal(f.balance(t)))
}

type mockTransactions struct {
	mock.Mock
	repo.Transactions
}

func (m *mockTransactions) FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Transaction), args.Error(1)
}

func (m *mockTransactions) Settle(ctx context.Context, s models.Settlement) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func TestSTKCallback_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("lookup", func(t *testing.T) {
		m := &mockTransactions{}
		m.On("FindByCheckoutRequestID", mock.Anything, "abc").Return(models.Transaction{}, boom)
		svc := NewReconcileService(m, nil, nil)

		_, err := svc.HandleSTKCallback(context.Background(), stkCallback("abc", 0, "ok"))
		assert.ErrorIs(t, err, boom)
		m.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	})

	t.Run("settle", func(t *testing.T) {
		m := &mockTransactions{}
		txn := models.Transaction{ID: "t-1", UserID: "u-1", Amount: decimal.NewFromInt(10), Status: models.TxnPending}
		m.On("FindByCheckoutRequestID", mock.Anything, "abc").Return(txn, nil)
		m.On("Settle", mock.Anything, mock.MatchedBy(func(s models.Settlement) bool {
			return s.TransactionID == "t-1" && s.Credit != nil && s.Credit.Amount.Equal(decimal.NewFromInt(10))
		})).Return(false, boom)
		sink := &recordingSink{}
		svc := NewReconcileService(m, nil, sink)

		_, err := svc.HandleSTKCallback(context.Background(), stkCallback("abc", 0, "ok"))
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, sink.events)
		m.AssertExpectations(t)
	})
}

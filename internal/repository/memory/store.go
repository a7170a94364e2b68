// Package memory is an in-process store with the same atomicity contract as
// the postgres repositories. It backs STORE_DRIVER=memory and the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/repository"
)

type Repositories struct {
	Users        repository.Users
	Transactions repository.Transactions
	AuditLogs    *AuditLogs
}

type state struct {
	mu    sync.Mutex
	users map[string]models.User
	txns  map[string]models.Transaction
	order []string
	now   func() time.Time
}

func NewRepositories() Repositories {
	s := &state{
		users: map[string]models.User{},
		txns:  map[string]models.Transaction{},
		now:   time.Now,
	}
	return Repositories{
		Users:        &users{s},
		Transactions: &transactions{s},
		AuditLogs:    &AuditLogs{},
	}
}

type users struct{ s *state }

func (r *users) Create(_ context.Context, u models.User) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, ok := r.s.users[u.ID]; ok {
		return models.User{}, fmt.Errorf("user %s already exists", u.ID)
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = u
	return u, nil
}

func (r *users) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type transactions struct{ s *state }

func (r *transactions) Create(_ context.Context, tx models.Transaction) (models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = models.TxnPending
	}
	if _, ok := r.s.users[tx.UserID]; !ok {
		return models.Transaction{}, repository.ErrUserNotFound
	}
	for _, existing := range r.s.txns {
		if tx.CheckoutRequestID != "" && existing.CheckoutRequestID == tx.CheckoutRequestID {
			return models.Transaction{}, fmt.Errorf("checkout request id %s already assigned", tx.CheckoutRequestID)
		}
		if tx.ConversationID != "" && existing.ConversationID == tx.ConversationID {
			return models.Transaction{}, fmt.Errorf("conversation id %s already assigned", tx.ConversationID)
		}
	}
	now := r.s.now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	r.s.txns[tx.ID] = tx
	r.s.order = append(r.s.order, tx.ID)
	return tx, nil
}

func (r *transactions) GetByID(_ context.Context, id string) (models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.txns[id]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	return tx, nil
}

func (r *transactions) FindByCheckoutRequestID(_ context.Context, id string) (models.Transaction, error) {
	return r.first(func(tx models.Transaction) bool { return tx.CheckoutRequestID == id })
}

func (r *transactions) FindByConversationID(_ context.Context, id string) (models.Transaction, error) {
	return r.first(func(tx models.Transaction) bool { return tx.ConversationID == id })
}

func (r *transactions) first(match func(models.Transaction) bool) (models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.order {
		if tx := r.s.txns[id]; match(tx) {
			return tx, nil
		}
	}
	return models.Transaction{}, repository.ErrNotFound
}

func (r *transactions) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Transaction{}
	for _, id := range r.s.order {
		if tx := r.s.txns[id]; tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []models.Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Settle validates every write before applying any of them, so a failed
// settlement leaves both the transaction and the balance untouched.
func (r *transactions) Settle(_ context.Context, s models.Settlement) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx, ok := r.s.txns[s.TransactionID]
	if !ok {
		return false, fmt.Errorf("settle %s: %w", s.TransactionID, repository.ErrNotFound)
	}
	if s.OnlyIfPending && tx.Status != models.TxnPending {
		return false, nil
	}
	var (
		u         models.User
		crediting = s.Credit != nil
	)
	if crediting {
		if u, ok = r.s.users[s.Credit.UserID]; !ok {
			return false, fmt.Errorf("increment balance of %s: %w", s.Credit.UserID, repository.ErrUserNotFound)
		}
	}

	tx.Status = s.Status
	tx.FailureReason = s.FailureReason
	if len(s.ProviderResult) > 0 {
		tx.ProviderResult = append([]byte(nil), s.ProviderResult...)
	}
	tx.UpdatedAt = s.At
	if s.Status == models.TxnCompleted {
		at := s.At
		tx.CompletedAt = &at
	}
	r.s.txns[tx.ID] = tx

	if crediting {
		u.TotalBalance = u.TotalBalance.Add(s.Credit.Amount)
		u.UpdatedAt = s.At
		r.s.users[u.ID] = u
	}
	return true, nil
}

// AuditLogs keeps entries in memory for inspection.
type AuditLogs struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *AuditLogs) Create(_ context.Context, l models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	l.ID = strconv.Itoa(len(a.entries) + 1)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	a.entries = append(a.entries, l)
	return nil
}

func (a *AuditLogs) Entries() []models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.AuditLog(nil), a.entries...)
}

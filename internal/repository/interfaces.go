package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/mpesa-backend/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUserNotFound = errors.New("user not found")
)

type Users interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type Transactions interface {
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)

	// Lookups by provider correlation id return ErrNotFound on a miss and the
	// earliest created match otherwise.
	FindByCheckoutRequestID(ctx context.Context, id string) (models.Transaction, error)
	FindByConversationID(ctx context.Context, id string) (models.Transaction, error)

	// Settle applies s atomically. It reports false when s.OnlyIfPending is set
	// and the transaction is no longer pending; nothing is written in that case.
	Settle(ctx context.Context, s models.Settlement) (bool, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

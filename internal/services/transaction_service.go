package services

import (
	"context"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type TransactionService struct{ r repo.Transactions }

func NewTransactionService(r repo.Transactions) *TransactionService {
	return &TransactionService{r: r}
}

func (s *TransactionService) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return s.r.GetByID(ctx, id)
}

// ListByUser returns newest first. Limits outside (0, MaxPageSize] fall back
// to DefaultPageSize.
func (s *TransactionService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.r.ListByUser(ctx, userID, limit, offset)
}

package services

import (
	"context"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
)

type BalanceService struct{ r repo.Users }

func NewBalanceService(r repo.Users) *BalanceService { return &BalanceService{r: r} }

func (s *BalanceService) Current(ctx context.Context, userID string) (models.Balance, error) {
	u, err := s.r.GetByID(ctx, userID)
	if err != nil {
		return models.Balance{}, err
	}
	return models.BalanceOf(u), nil
}

package services

import (
	"context"
	"fmt"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
)

type UserService struct{ r repo.Users }

func NewUserService(r repo.Users) *UserService { return &UserService{r: r} }

// Register opens an account with a zero balance. The phone number is stored
// in normalized MSISDN form when one is given.
func (s *UserService) Register(ctx context.Context, phone string) (models.User, error) {
	u := models.User{}
	if phone != "" {
		p, err := mpesa.NormalizeMSISDN(phone)
		if err != nil {
			return models.User{}, err
		}
		u.PhoneNumber = p
	}
	created, err := s.r.Create(ctx, u)
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.r.GetByID(ctx, id)
}

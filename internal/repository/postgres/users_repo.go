package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type usersRepo struct{ pool *pgxpool.Pool }

func NewUsers(pool *pgxpool.Pool) repository.Users {
	return &usersRepo{pool: pool}
}

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users(id, phone_number, total_balance) VALUES($1, NULLIF($2,''), $3::numeric)`,
		u.ID, u.PhoneNumber, u.TotalBalance.String(),
	)
	if err != nil {
		return models.User{}, err
	}
	return r.GetByID(ctx, u.ID)
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	var (
		u       models.User
		phone   *string
		balance string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, phone_number, total_balance::text, created_at, updated_at FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &phone, &balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, repository.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if phone != nil {
		u.PhoneNumber = *phone
	}
	if u.TotalBalance, err = decimal.NewFromString(balance); err != nil {
		return models.User{}, fmt.Errorf("user %s balance: %w", id, err)
	}
	return u, nil
}

// incrementBalance is a relative update so concurrent settlements never lose
// each other's writes.
func incrementBalance(ctx context.Context, tx pgx.Tx, c models.BalanceCredit) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users
		    SET total_balance = total_balance + $2::numeric,
		        updated_at = now()
		  WHERE id = $1`,
		c.UserID, c.Amount.String(),
	)
	if err != nil {
		return fmt.Errorf("increment balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("increment balance of %s: %w", c.UserID, repository.ErrUserNotFound)
	}
	return nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the read view of a user's total balance.
type Balance struct {
	UserID        string          `json:"user_id"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

func BalanceOf(u User) Balance {
	return Balance{UserID: u.ID, TotalBalance: u.TotalBalance, LastUpdatedAt: u.UpdatedAt}
}

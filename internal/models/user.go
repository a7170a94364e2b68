package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string          `json:"id"`
	PhoneNumber  string          `json:"phone_number,omitempty"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

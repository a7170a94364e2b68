package postgres

import (
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	Users        repo.Users
	Transactions repo.Transactions
	AuditLogs    repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:        NewUsers(pool),
		Transactions: NewTransactions(pool),
		AuditLogs:    NewAuditLogs(pool),
	}
}

package middleware

import (
	"context"

	"github.com/baharkarakas/mpesa-backend/internal/auth"
)

type userKey struct{}

type UserCtx struct {
	UserID string
	Role   string
}

func WithUser(ctx context.Context, u UserCtx) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func FromCtx(ctx context.Context) (UserCtx, bool) {
	u, ok := ctx.Value(userKey{}).(UserCtx)
	return u, ok
}

// CanAccess reports whether the caller may act on userID's account.
func CanAccess(ctx context.Context, userID string) bool {
	u, ok := FromCtx(ctx)
	if !ok {
		return false
	}
	return u.Role == auth.RoleAdmin || u.UserID == userID
}

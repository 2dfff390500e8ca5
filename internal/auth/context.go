package auth

import (
	"context"

	"github.com/nadmax/bordo/internal/repository/models"
)

type userKey struct{}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey{}).(*models.User)
	return user, ok && user != nil
}

// RequireUser is UserFromContext for callers that cannot proceed anonymously.
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	return user, nil
}

package problems

import (
	"context"
	"strings"

	"obralog/pkg/types"
)

type contextKey string

const userContextKey contextKey = "user"

// WithUser attaches the session user. Every action reads it back and
// refuses to run without one.
func WithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (*types.User, error) {
	user, ok := ctx.Value(userContextKey).(*types.User)
	if !ok || user == nil || user.ID == "" {
		return nil, types.ErrUnauthenticated
	}
	return user, nil
}

// DevUserID is the user id given to development logins. It is stable per
// email so records survive new logins.
func DevUserID(email string) string {
	return "dev:" + strings.ToLower(strings.TrimSpace(email))
}

package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxUserID ctxKey = iota

var ErrNoIdentity = errors.New("user_id not in context")

func WithIdentity(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func UserID(ctx context.Context) (int64, error) {
	v := ctx.Value(ctxUserID)
	if id, ok := v.(int64); ok && id > 0 {
		return id, nil
	}
	return 0, ErrNoIdentity
}

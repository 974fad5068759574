package httpserver

import (
	"context"

	"github.com/and161185/hacking-zone/internal/model"
	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const (
	accountIDKey ctxKey = "hz.accountID"
	accountKey   ctxKey = "hz.account"
)

// WithAccountID stores authenticated account ID in context.
func WithAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

// AccountIDFromCtx fetches account ID from context.
func AccountIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(accountIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func withAccount(ctx context.Context, a model.Account) context.Context {
	return context.WithValue(WithAccountID(ctx, a.ID), accountKey, a)
}

func accountFromCtx(ctx context.Context) (model.Account, bool) {
	a, ok := ctx.Value(accountKey).(model.Account)
	return a, ok
}

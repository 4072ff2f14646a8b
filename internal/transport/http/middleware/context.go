package middleware

import (
	"context"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
)

type ctxKey string

const (
	ctxKeyUser      ctxKey = "user"
	ctxKeyRequestID ctxKey = "request_id"
)

func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}

// Actor returns the audit actor for the authenticated user, or the system
// actor when the request is anonymous.
func Actor(ctx context.Context) audit.Actor {
	user, ok := GetUser(ctx)
	if !ok {
		return audit.System
	}
	return audit.Actor{UserID: user.UserID, Email: user.Email}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return value
	}
	return ""
}

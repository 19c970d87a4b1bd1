package server

import (
	"context"

	"github.com/citizenintel/portal/internal/model"
)

type contextKey int

const (
	ctxKeySession contextKey = iota
	ctxKeyCSRFToken
	ctxKeyRequestID
	ctxKeyVisitor
)

func withSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, sess)
}

// SessionFromContext returns the officer session from the context, or nil.
func SessionFromContext(ctx context.Context) *model.Session {
	s, _ := ctx.Value(ctxKeySession).(*model.Session)
	return s
}

func withCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyCSRFToken, token)
}

func withVisitor(ctx context.Context, v *visitor) context.Context {
	return context.WithValue(ctx, ctxKeyVisitor, v)
}

func visitorFromContext(ctx context.Context) *visitor {
	v, _ := ctx.Value(ctxKeyVisitor).(*visitor)
	return v
}

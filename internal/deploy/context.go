package deploy

import (
	"context"

	"github.com/clojars/deploy-ingest/internal/auth"
)

type contextKey int

const (
	accountContextKey contextKey = iota
	traceIDContextKey
)

func withAccount(ctx context.Context, account auth.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// accountFromContext returns the account attached by the require-token
// middleware, or the zero Account (cookie-credentialed, unscoped) if
// none was attached — matching spec §4.5's "identity is not a token"
// branch, which always allows.
func accountFromContext(ctx context.Context) auth.Account {
	account, _ := ctx.Value(accountContextKey).(auth.Account)
	return account
}

func withTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDContextKey).(string)
	return traceID
}

package middleware

import (
	"context"

	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/pkg/auth"
)

type contextKey string

const (
	ctxExternalID contextKey = "external_id"
	ctxClaims     contextKey = "session_claims"
	ctxSnapshot   contextKey = "status_snapshot"
	ctxRequestID  contextKey = "request_id"
)

// ExternalIDFromContext returns the identity provider id of the signed-in caller.
func ExternalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxExternalID).(string); ok {
		return v
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) *auth.SessionClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClaims).(*auth.SessionClaims); ok {
		return v
	}
	return nil
}

// SnapshotFromContext returns the status resolved by the Gate middleware.
func SnapshotFromContext(ctx context.Context) (status.Snapshot, bool) {
	if ctx == nil {
		return status.Snapshot{}, false
	}
	snap, ok := ctx.Value(ctxSnapshot).(status.Snapshot)
	return snap, ok
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// WithSession injects the verified session into the context.
func WithSession(ctx context.Context, claims *auth.SessionClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if claims == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, ctxClaims, claims)
	return context.WithValue(ctx, ctxExternalID, claims.ExternalID())
}

// WithSnapshot injects a resolved status snapshot into the context.
func WithSnapshot(ctx context.Context, snap status.Snapshot) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSnapshot, snap)
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/backoffice/api/responses"
	"github.com/angelmondragon/backoffice/internal/gate"
	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/pkg/auth"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

type requestGate interface {
	Check(ctx context.Context, path, externalID string, claims *auth.SessionClaims) (gate.Verdict, status.Snapshot)
	Pages() gate.Pages
}

// Gate enforces the approval gate on every non-asset request. Page requests are
// redirected; API requests get a JSON error carrying the redirect target.
func Gate(g requestGate, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate.IsStaticAsset(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			verdict, snap := g.Check(ctx, r.URL.Path, ExternalIDFromContext(ctx), ClaimsFromContext(ctx))
			ctx = WithSnapshot(ctx, snap)

			if verdict.Allowed() {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if !isAPIRequest(r) {
				http.Redirect(w, r.WithContext(ctx), verdict.Target, http.StatusTemporaryRedirect)
				return
			}

			details := map[string]any{
				"redirect":        verdict.Target,
				"approval_status": snap.ApprovalStatus,
			}
			if verdict.Target == g.Pages().SignIn {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign-in required").WithDetails(details))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "account not allowed on this route").WithDetails(details))
		})
	}
}

// RequireAdmin admits only callers whose resolved snapshot is admin. It must run after Gate.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := SnapshotFromContext(r.Context())
			if !ok || ExternalIDFromContext(r.Context()) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign-in required"))
				return
			}
			if !snap.IsAdmin {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAPIRequest(r *http.Request) bool {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

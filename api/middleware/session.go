package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

// SessionAuth verifies the session token when one is presented and seeds the context
// with its claims. Requests without a valid token continue anonymously; the Gate
// decides whether the route needs a session.
func SessionAuth(cfg config.SessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cfg.CookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseSessionToken(cfg, token)
			if err != nil {
				if logg != nil {
					reason := "invalid"
					if errors.Is(err, auth.ErrSessionExpired) {
						reason = "expired"
					}
					logg.Debug(logg.WithFields(r.Context(), map[string]any{"reason": reason, "error": err.Error()}), "session.rejected")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithSession(r.Context(), claims)
			if logg != nil {
				ctx = logg.WithExternalID(ctx, claims.ExternalID())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw != "" {
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			raw = strings.TrimSpace(raw[7:])
		}
		return raw
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

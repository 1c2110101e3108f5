package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/backoffice/api/middleware"
	"github.com/angelmondragon/backoffice/api/responses"
	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

type userEnsurer interface {
	EnsureUser(ctx context.Context, dto users.EnsureUserDTO) (*models.User, bool, error)
}

type meResponse struct {
	Status status.Snapshot `json:"status"`
	User   *users.UserDTO  `json:"user"`
}

// Me returns the caller's resolved status plus their local record, creating the
// record on first sight.
func Me(store userEnsurer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		externalID := middleware.ExternalIDFromContext(ctx)
		snap, ok := middleware.SnapshotFromContext(ctx)
		if externalID == "" || !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign-in required"))
			return
		}

		email := ""
		if claims := middleware.ClaimsFromContext(ctx); claims != nil {
			email = claims.Email
		}
		user, created, err := store.EnsureUser(ctx, users.EnsureUserDTO{ExternalID: externalID, Email: email})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure local user"))
			return
		}
		if created && logg != nil {
			logg.Info(ctx, "local user created on first sign-in")
		}

		responses.WriteSuccess(w, meResponse{Status: snap, User: users.FromModel(user)})
	}
}

// StatusPage answers a limbo page with the caller's resolved status. The gate has
// already confined the caller to the page matching that status.
func StatusPage(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := middleware.SnapshotFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign-in required"))
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice/api/middleware"
	"github.com/angelmondragon/backoffice/api/responses"
	"github.com/angelmondragon/backoffice/api/validators"
	"github.com/angelmondragon/backoffice/internal/moderation"
	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/pagination"
)

const maxReasonLength = 1000

type moderationService interface {
	Apply(ctx context.Context, input moderation.ApplyInput) (*moderation.Result, error)
	History(ctx context.Context, targetUserID uuid.UUID, limit int) ([]moderation.RecordDTO, error)
}

type reviewQueue interface {
	ListByStatus(ctx context.Context, params users.ListParams) ([]models.User, *pagination.Cursor, error)
}

type reviewQueuePage struct {
	Items  []*users.UserDTO `json:"items"`
	Cursor string           `json:"cursor,omitempty"`
}

type moderationRequest struct {
	Action          string `json:"action" validate:"required,moderation_action"`
	Reason          string `json:"reason" validate:"max=1000"`
	ExpectedVersion *int64 `json:"expected_version" validate:"required,min=0"`
}

// AdminModerate applies one moderation decision to the user in the path.
func AdminModerate(svc moderationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		targetID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body moderationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		action, err := enums.ParseModerationAction(body.Action)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		result, err := svc.Apply(ctx, moderation.ApplyInput{
			TargetUserID:        targetID,
			ModeratorExternalID: middleware.ExternalIDFromContext(ctx),
			Action:              action,
			Reason:              validators.SanitizeString(body.Reason, maxReasonLength),
			ExpectedVersion:     *body.ExpectedVersion,
			Metadata: moderation.RequestMetadata{
				IP:        middleware.ClientIP(r),
				UserAgent: r.UserAgent(),
				RequestID: middleware.RequestIDFromContext(ctx),
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusOK
		if result.PropagationPending {
			status = http.StatusAccepted
		}
		responses.WriteSuccessWithWarnings(w, status, result, result.Warnings)
	}
}

// AdminModerationHistory lists the audit trail for the user in the path.
func AdminModerationHistory(svc moderationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := svc.History(r.Context(), targetID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}

// AdminReviewQueue pages through users in one approval state, oldest first. Defaults to PENDING.
func AdminReviewQueue(queue reviewQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		filter := enums.ApprovalStatusPending
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, err := enums.ParseApprovalStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter = parsed
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").
				WithDetails(map[string]any{"field": "cursor"}))
			return
		}

		rows, next, err := queue.ListByStatus(ctx, users.ListParams{Status: filter, Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users"))
			return
		}
		page := reviewQueuePage{Items: make([]*users.UserDTO, 0, len(rows))}
		for i := range rows {
			page.Items = append(page.Items, users.FromModel(&rows[i]))
		}
		if next != nil {
			page.Cursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, page)
	}
}

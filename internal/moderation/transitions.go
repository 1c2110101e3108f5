package moderation

import (
	"strings"
	"time"

	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
	"github.com/google/uuid"
)

// planTransition maps an action onto the columns it rewrites. Every decision writes
// the full set so fields from an earlier decision never leak into the new state.
func planTransition(action enums.ModerationAction, reason string, moderatorID uuid.UUID, now time.Time, initialCredits int) (users.StatusPatch, error) {
	target, err := validateDecision(action, reason)
	if err != nil {
		return users.StatusPatch{}, err
	}
	reason = strings.TrimSpace(reason)

	patch := users.StatusPatch{
		ApprovalStatus: target,
		UpdatedAt:      now,
	}
	switch action {
	case enums.ModerationActionApprove:
		patch.CreditBalance = initialCredits
		patch.ApprovedAt = &now
		patch.ApprovedBy = &moderatorID
	case enums.ModerationActionReject:
		patch.CreditBalance = 0
		patch.RejectedAt = &now
		patch.RejectedBy = &moderatorID
		patch.RejectionReason = &reason
	case enums.ModerationActionSuspend:
		patch.CreditBalance = 0
		patch.SuspendedAt = &now
	}
	return patch, nil
}

func validateDecision(action enums.ModerationAction, reason string) (enums.ApprovalStatus, error) {
	target, ok := action.TargetStatus()
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown moderation action").
			WithDetails(map[string]any{"action": action.String()})
	}
	if action.RequiresReason() && strings.TrimSpace(reason) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reason is required").
			WithDetails(map[string]any{"action": action.String(), "field": "reason"})
	}
	return target, nil
}

func optionalReason(reason string) *string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	return &reason
}

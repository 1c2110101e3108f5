package users

import (
	"time"

	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/google/uuid"
)

// UserDTO is the transport shape of a local user record.
type UserDTO struct {
	ID              uuid.UUID            `json:"id"`
	ExternalID      string               `json:"external_id"`
	Email           string               `json:"email"`
	Role            enums.UserRole       `json:"role"`
	ApprovalStatus  enums.ApprovalStatus `json:"approval_status"`
	CreditBalance   int                  `json:"credit_balance"`
	Version         int64                `json:"version"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	ApprovedBy      *uuid.UUID           `json:"approved_by,omitempty"`
	RejectedAt      *time.Time           `json:"rejected_at,omitempty"`
	RejectedBy      *uuid.UUID           `json:"rejected_by,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	SuspendedAt     *time.Time           `json:"suspended_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// EnsureUserDTO carries what the first sign-in knows about an account.
type EnsureUserDTO struct {
	ExternalID string
	Email      string
}

// StatusPatch is the full set of columns a moderation decision rewrites.
type StatusPatch struct {
	ApprovalStatus  enums.ApprovalStatus
	CreditBalance   int
	ApprovedAt      *time.Time
	ApprovedBy      *uuid.UUID
	RejectedAt      *time.Time
	RejectedBy      *uuid.UUID
	RejectionReason *string
	SuspendedAt     *time.Time
	UpdatedAt       time.Time
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:              u.ID,
		ExternalID:      u.ExternalID,
		Email:           u.Email,
		Role:            u.Role,
		ApprovalStatus:  u.ApprovalStatus,
		CreditBalance:   u.CreditBalance,
		Version:         u.Version,
		ApprovedAt:      u.ApprovedAt,
		ApprovedBy:      u.ApprovedBy,
		RejectedAt:      u.RejectedAt,
		RejectedBy:      u.RejectedBy,
		RejectionReason: u.RejectionReason,
		SuspendedAt:     u.SuspendedAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (e EnsureUserDTO) ToModel() *models.User {
	return &models.User{
		ExternalID:     e.ExternalID,
		Email:          e.Email,
		Role:           enums.UserRoleUser,
		ApprovalStatus: enums.ApprovalStatusPending,
		CreditBalance:  0,
		Version:        0,
	}
}

func (p StatusPatch) columns(expectedVersion int64) map[string]any {
	return map[string]any{
		"approval_status":  p.ApprovalStatus,
		"credit_balance":   p.CreditBalance,
		"approved_at":      p.ApprovedAt,
		"approved_by":      p.ApprovedBy,
		"rejected_at":      p.RejectedAt,
		"rejected_by":      p.RejectedBy,
		"rejection_reason": p.RejectionReason,
		"suspended_at":     p.SuspendedAt,
		"updated_at":       p.UpdatedAt,
		"version":          expectedVersion + 1,
	}
}

package moderation

import (
	"time"

	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/google/uuid"
)

// RequestMetadata is the request context stored with each audit entry.
type RequestMetadata struct {
	IP        string
	UserAgent string
	RequestID string
}

// ApplyInput describes one moderation decision.
type ApplyInput struct {
	TargetUserID        uuid.UUID
	ModeratorExternalID string
	Action              enums.ModerationAction
	Reason              string
	ExpectedVersion     int64
	Metadata            RequestMetadata
}

// RecordDTO is the transport shape of an audit entry.
type RecordDTO struct {
	ID             uuid.UUID              `json:"id"`
	TargetUserID   uuid.UUID              `json:"target_user_id"`
	ModeratorID    uuid.UUID              `json:"moderator_id"`
	Action         enums.ModerationAction `json:"action"`
	PreviousStatus enums.ApprovalStatus   `json:"previous_status"`
	NewStatus      enums.ApprovalStatus   `json:"new_status"`
	Reason         *string                `json:"reason,omitempty"`
	IP             string                 `json:"ip,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Result is returned by a committed moderation decision. Warnings lists best-effort
// propagation failures; they never turn a committed decision into an error.
type Result struct {
	User               *users.UserDTO `json:"user"`
	Record             *RecordDTO     `json:"record"`
	Warnings           []string       `json:"-"`
	PropagationPending bool           `json:"propagation_pending"`
}

func recordFromModel(m *models.ModerationRecord) *RecordDTO {
	if m == nil {
		return nil
	}
	out := &RecordDTO{
		ID:             m.ID,
		TargetUserID:   m.TargetUserID,
		ModeratorID:    m.ModeratorID,
		Action:         m.Action,
		PreviousStatus: m.PreviousStatus,
		NewStatus:      m.NewStatus,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt,
	}
	if m.Metadata != nil {
		out.IP = m.Metadata.IP
		out.UserAgent = m.Metadata.UserAgent
		out.RequestID = m.Metadata.RequestID
	}
	return out
}

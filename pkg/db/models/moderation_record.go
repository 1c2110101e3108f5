package models

import (
	"time"

	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModerationRecord is one append-only audit entry for an approval decision.
type ModerationRecord struct {
	ID             uuid.UUID              `gorm:"type:uuid;primaryKey"`
	TargetUserID   uuid.UUID              `gorm:"column:target_user_id;type:uuid;not null;index"`
	ModeratorID    uuid.UUID              `gorm:"column:moderator_id;type:uuid;not null"`
	Action         enums.ModerationAction `gorm:"column:action;not null"`
	PreviousStatus enums.ApprovalStatus   `gorm:"column:previous_status;not null"`
	NewStatus      enums.ApprovalStatus   `gorm:"column:new_status;not null"`
	Reason         *string                `gorm:"column:reason"`
	Metadata       *ModerationMetadata    `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// ModerationMetadata is the free-form request context stored with an audit entry.
type ModerationMetadata struct {
	IP              string    `json:"ip,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	ExpectedVersion int64     `json:"expected_version"`
	RequestedAt     time.Time `json:"requested_at"`
}

func (ModerationRecord) TableName() string { return "moderation_records" }

func (m *ModerationRecord) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

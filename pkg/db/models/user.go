package models

import (
	"time"

	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local mirror of an identity-provider account, keyed by ExternalID.
type User struct {
	ID              uuid.UUID            `gorm:"type:uuid;primaryKey"`
	ExternalID      string               `gorm:"column:external_id;not null;uniqueIndex"`
	Email           string               `gorm:"column:email;not null"`
	Role            enums.UserRole       `gorm:"column:role;not null;default:USER"`
	ApprovalStatus  enums.ApprovalStatus `gorm:"column:approval_status;not null;default:PENDING"`
	CreditBalance   int                  `gorm:"column:credit_balance;not null;default:0"`
	Version         int64                `gorm:"column:version;not null;default:0"`
	ApprovedAt      *time.Time           `gorm:"column:approved_at"`
	ApprovedBy      *uuid.UUID           `gorm:"column:approved_by;type:uuid"`
	RejectedAt      *time.Time           `gorm:"column:rejected_at"`
	RejectedBy      *uuid.UUID           `gorm:"column:rejected_by;type:uuid"`
	RejectionReason *string              `gorm:"column:rejection_reason"`
	SuspendedAt     *time.Time           `gorm:"column:suspended_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// BeforeCreate assigns the primary key so both postgres and sqlite behave the same.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

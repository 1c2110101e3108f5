package moderation

import (
	"context"

	"github.com/angelmondragon/backoffice/internal/repo"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 100

// AuditRepository appends and lists moderation records. Records are never updated.
type AuditRepository struct {
	repo.Base
}

// NewAuditRepository constructs the audit log repo bound to conn.
func NewAuditRepository(conn *gorm.DB) *AuditRepository {
	return &AuditRepository{Base: repo.NewBase(conn)}
}

// AppendTx inserts record, inside tx when one is supplied.
func (r *AuditRepository) AppendTx(ctx context.Context, tx *gorm.DB, record *models.ModerationRecord) error {
	return r.Conn(ctx, tx).Create(record).Error
}

// ListByTarget returns the newest records for a user first.
func (r *AuditRepository) ListByTarget(ctx context.Context, targetUserID uuid.UUID, limit int) ([]models.ModerationRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var out []models.ModerationRecord
	err := r.DB(ctx).
		Where("target_user_id = ?", targetUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

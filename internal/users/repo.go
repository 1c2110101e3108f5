package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/backoffice/internal/repo"
	"github.com/angelmondragon/backoffice/pkg/db"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the authoritative local user store.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// FindByExternalID loads the user mapped to the identity provider id.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.FindByIDTx(ctx, nil, id)
}

// FindByIDTx loads a user inside tx when one is supplied.
func (r *Repository) FindByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.Conn(ctx, tx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CompareAndSwapTx applies patch and bumps the version in one conditional update.
// Zero affected rows means the stored version moved and ErrVersionConflict is returned.
func (r *Repository) CompareAndSwapTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int64, patch StatusPatch) (*models.User, error) {
	res := r.Conn(ctx, tx).
		Model(&models.User{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(patch.columns(expectedVersion))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return r.FindByIDTx(ctx, tx, id)
}

// EnsureUser returns the user for dto.ExternalID, creating a PENDING record on first sight.
// Concurrent first sign-ins race on the unique external_id index; the loser re-reads.
func (r *Repository) EnsureUser(ctx context.Context, dto EnsureUserDTO) (*models.User, bool, error) {
	if dto.ExternalID == "" {
		return nil, false, fmt.Errorf("external id is required")
	}

	existing, err := r.FindByExternalID(ctx, dto.ExternalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := r.FindByExternalID(ctx, dto.ExternalID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}

// ListParams selects one page of the review queue.
type ListParams struct {
	Status enums.ApprovalStatus
	Limit  int
	Cursor *pagination.Cursor
}

// ListByStatus pages through users in one approval state, oldest first. The
// returned cursor is nil on the last page.
func (r *Repository) ListByStatus(ctx context.Context, params ListParams) ([]models.User, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.DB(ctx).Model(&models.User{}).Where("approval_status = ?", params.Status)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var out []models.User
	if err := query.Order("created_at ASC, id ASC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&out).Error; err != nil {
		return nil, nil, err
	}
	if len(out) > normalized {
		out = out[:normalized]
		last := out[len(out)-1]
		return out, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return out, nil, nil
}

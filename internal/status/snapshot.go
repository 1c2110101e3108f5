package status

import (
	"time"

	"github.com/angelmondragon/backoffice/pkg/enums"
)

// Snapshot is the resolved, cacheable authorization view of one account.
type Snapshot struct {
	ApprovalStatus enums.ApprovalStatus `json:"approvalStatus"`
	Role           enums.UserRole       `json:"role"`
	IsAdmin        bool                 `json:"isAdmin"`
	ResolvedAt     time.Time            `json:"resolvedAt"`
	Source         enums.SnapshotSource `json:"source"`
}

// NewSnapshot builds a snapshot, deriving IsAdmin from role.
func NewSnapshot(approval enums.ApprovalStatus, role enums.UserRole, resolvedAt time.Time, source enums.SnapshotSource) Snapshot {
	return Snapshot{
		ApprovalStatus: approval,
		Role:           role,
		IsAdmin:        role.IsAdmin(),
		ResolvedAt:     resolvedAt,
		Source:         source,
	}
}

// DefaultSnapshot is the fail-closed answer used whenever no source can be trusted.
func DefaultSnapshot(now time.Time) Snapshot {
	return NewSnapshot(enums.ApprovalStatusPending, enums.UserRoleUser, now, enums.SnapshotSourceDefault)
}

package moderation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var sqliteDDL = []string{`
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'USER',
	approval_status TEXT NOT NULL DEFAULT 'PENDING',
	credit_balance INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 0,
	approved_at DATETIME,
	approved_by TEXT,
	rejected_at DATETIME,
	rejected_by TEXT,
	rejection_reason TEXT,
	suspended_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
)`, `
CREATE TABLE moderation_records (
	id TEXT PRIMARY KEY,
	target_user_id TEXT NOT NULL REFERENCES users(id),
	moderator_id TEXT NOT NULL REFERENCES users(id),
	action TEXT NOT NULL,
	previous_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	reason TEXT,
	metadata TEXT,
	created_at DATETIME
)`}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	for _, stmt := range sqliteDDL {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func TestApplyCommitsThroughSQLStore(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()
	userRepo := users.NewRepository(conn)
	auditRepo := NewAuditRepository(conn)

	admin, _, err := userRepo.EnsureUser(ctx, users.EnsureUserDTO{ExternalID: "admin_1"})
	require.NoError(t, err)
	require.NoError(t, conn.Table("users").Where("id = ?", admin.ID).Update("role", string(enums.UserRoleAdmin)).Error)
	target, _, err := userRepo.EnsureUser(ctx, users.EnsureUserDTO{ExternalID: "user_x", Email: "x@example.com"})
	require.NoError(t, err)

	cache := &recordingCache{}
	propagator, err := NewPropagator(PropagatorParams{Profiles: &stubProfiles{}, Cache: cache, Sleep: noSleep})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Users:              userRepo,
		Audit:              auditRepo,
		Tx:                 db.NewFromGorm(conn),
		Cache:              cache,
		Propagator:         propagator,
		InitialCreditGrant: 100,
		AwaitPropagation:   true,
	})
	require.NoError(t, err)

	res, err := svc.Apply(ctx, ApplyInput{
		TargetUserID:        target.ID,
		ModeratorExternalID: "admin_1",
		Action:              enums.ModerationActionReject,
		Reason:              "policy violation",
		ExpectedVersion:     0,
		Metadata:            RequestMetadata{IP: "10.0.0.1", UserAgent: "curl/8", RequestID: "req-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.User.Version)

	stored, err := userRepo.FindByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApprovalStatusRejected, stored.ApprovalStatus)
	assert.Equal(t, int64(1), stored.Version)

	records, err := auditRepo.ListByTarget(ctx, target.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, enums.ApprovalStatusPending, records[0].PreviousStatus)
	assert.Equal(t, enums.ApprovalStatusRejected, records[0].NewStatus)
	require.NotNil(t, records[0].Metadata)
	assert.Equal(t, "req-9", records[0].Metadata.RequestID)
	assert.Equal(t, int64(0), records[0].Metadata.ExpectedVersion)

	_, err = svc.Apply(ctx, ApplyInput{
		TargetUserID:        target.ID,
		ModeratorExternalID: "admin_1",
		Action:              enums.ModerationActionApprove,
		ExpectedVersion:     0,
	})
	require.Error(t, err)
	records, err = auditRepo.ListByTarget(ctx, target.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1, "a conflicting decision leaves no audit entry")
}

func TestAuditListByTargetOrdersNewestFirst(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()
	userRepo := users.NewRepository(conn)
	auditRepo := NewAuditRepository(conn)

	admin, _, err := userRepo.EnsureUser(ctx, users.EnsureUserDTO{ExternalID: "admin_1"})
	require.NoError(t, err)
	target, _, err := userRepo.EnsureUser(ctx, users.EnsureUserDTO{ExternalID: "user_x"})
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []enums.ModerationAction{enums.ModerationActionSuspend, enums.ModerationActionApprove} {
		require.NoError(t, auditRepo.AppendTx(ctx, nil, newRecordForTest(target.ID, admin.ID, action, base.Add(time.Duration(i)*time.Hour))))
	}

	records, err := auditRepo.ListByTarget(ctx, target.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, enums.ModerationActionApprove, records[0].Action)

	limited, err := auditRepo.ListByTarget(ctx, target.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/angelmondragon/backoffice/pkg/pubsub"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[uuid.UUID]models.User{}}
}

func (m *memoryUsers) add(externalID string, role enums.UserRole, status enums.ApprovalStatus, version int64) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{
		ID:             uuid.New(),
		ExternalID:     externalID,
		Role:           role,
		ApprovalStatus: status,
		Version:        version,
	}
	m.byID[u.ID] = u
	return u
}

func (m *memoryUsers) get(id uuid.UUID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memoryUsers) FindByExternalID(_ context.Context, externalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ExternalID == externalID {
			out := u
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.FindByIDTx(ctx, nil, id)
}

func (m *memoryUsers) FindByIDTx(_ context.Context, _ *gorm.DB, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (m *memoryUsers) CompareAndSwapTx(_ context.Context, _ *gorm.DB, id uuid.UUID, expectedVersion int64, patch users.StatusPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.Version != expectedVersion {
		return nil, users.ErrVersionConflict
	}
	u.ApprovalStatus = patch.ApprovalStatus
	u.CreditBalance = patch.CreditBalance
	u.ApprovedAt = patch.ApprovedAt
	u.ApprovedBy = patch.ApprovedBy
	u.RejectedAt = patch.RejectedAt
	u.RejectedBy = patch.RejectedBy
	u.RejectionReason = patch.RejectionReason
	u.SuspendedAt = patch.SuspendedAt
	u.UpdatedAt = patch.UpdatedAt
	u.Version = expectedVersion + 1
	m.byID[id] = u
	return &u, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	records []models.ModerationRecord
}

func (m *memoryAudit) AppendTx(_ context.Context, _ *gorm.DB, record *models.ModerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryAudit) ListByTarget(_ context.Context, targetUserID uuid.UUID, _ int) ([]models.ModerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ModerationRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].TargetUserID == targetUserID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memoryAudit) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (r *recordingCache) Invalidate(externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, externalID)
}

func (r *recordingCache) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.invalidated...)
}

type stubProfiles struct {
	mu        sync.Mutex
	updateErr error
	banErr    error
	updates   []identity.ProfilePatch
	calls     map[string]int
}

func (s *stubProfiles) record(name string) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[name]++
}

func (s *stubProfiles) UpdateProfile(_ context.Context, _ string, patch identity.ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(TaskProfileSync)
	s.updates = append(s.updates, patch)
	return s.updateErr
}

func (s *stubProfiles) BanUser(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(TaskBan)
	return s.banErr
}

func (s *stubProfiles) UnbanUser(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(TaskUnban)
	return nil
}

func (s *stubProfiles) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []pubsub.ModerationEvent
}

func (c *capturingPublisher) PublishModeration(_ context.Context, event pubsub.ModerationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

type fixture struct {
	users    *memoryUsers
	audit    *memoryAudit
	cache    *recordingCache
	profiles *stubProfiles
	events   *capturingPublisher
	svc      Service
	admin    models.User
	now      time.Time
}

func newFixture(t *testing.T, await bool) *fixture {
	t.Helper()
	f := &fixture{
		users:    newMemoryUsers(),
		audit:    &memoryAudit{},
		cache:    &recordingCache{},
		profiles: &stubProfiles{},
		events:   &capturingPublisher{},
		now:      time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	f.admin = f.users.add("admin_1", enums.UserRoleAdmin, enums.ApprovalStatusApproved, 1)

	propagator, err := NewPropagator(PropagatorParams{
		Profiles: f.profiles,
		Events:   f.events,
		Cache:    f.cache,
		Sleep:    noSleep,
	})
	require.NoError(t, err)

	f.svc, err = NewService(ServiceParams{
		Users:              f.users,
		Audit:              f.audit,
		Tx:                 passthroughTx{},
		Cache:              f.cache,
		Propagator:         propagator,
		InitialCreditGrant: 100,
		AwaitPropagation:   await,
		Now:                func() time.Time { return f.now },
	})
	require.NoError(t, err)
	t.Cleanup(f.svc.Wait)
	return f
}

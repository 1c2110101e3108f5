package status

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProfileStore struct {
	calls   atomic.Int32
	profile *identity.Profile
	err     error
	block   bool
	panics  bool
}

func (s *stubProfileStore) GetProfile(ctx context.Context, externalID string) (*identity.Profile, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.block {
		// ignores ctx on purpose to prove the resolver bounds the call itself
		time.Sleep(2 * time.Second)
	}
	return s.profile, s.err
}

func newTestResolver(t *testing.T, store ProfileStore, clock *fakeClock) *Resolver {
	t.Helper()
	cache := NewCache(CacheOptions{TTL: time.Minute, ClaimsStaleWindow: time.Hour, Now: clock.Now, Rand: neverSweep})
	resolver, err := NewResolver(ResolverParams{
		Cache:          cache,
		Profiles:       store,
		ProfileTimeout: 50 * time.Millisecond,
		Now:            clock.Now,
	})
	require.NoError(t, err)
	return resolver
}

func claimsFor(externalID, approval, role string, issuedAt time.Time) *auth.SessionClaims {
	return &auth.SessionClaims{
		Metadata: &auth.ProfileMetadata{ApprovalStatus: approval, Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  externalID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
}

func TestResolveUsesSessionClaimsWithoutExternalCalls(t *testing.T) {
	clock := newFakeClock()
	store := &stubProfileStore{}
	resolver := newTestResolver(t, store, clock)

	issued := clock.Now().Add(-10 * time.Minute)
	snap := resolver.Resolve(context.Background(), "user_1", claimsFor("user_1", "approved", "ADMIN", issued))

	assert.Equal(t, enums.ApprovalStatusApproved, snap.ApprovalStatus)
	assert.Equal(t, enums.UserRoleAdmin, snap.Role)
	assert.True(t, snap.IsAdmin)
	assert.Equal(t, enums.SnapshotSourceSessionClaims, snap.Source)
	assert.True(t, snap.ResolvedAt.Equal(issued))
	assert.Zero(t, store.calls.Load())
}

func TestResolveClaimsWithoutRoleDefaultToUser(t *testing.T) {
	clock := newFakeClock()
	resolver := newTestResolver(t, &stubProfileStore{}, clock)

	snap := resolver.Resolve(context.Background(), "user_1", claimsFor("user_1", "PENDING", "", clock.Now()))
	assert.Equal(t, enums.UserRoleUser, snap.Role)
	assert.False(t, snap.IsAdmin)
}

func TestResolveFallsBackToProfileStoreAndCaches(t *testing.T) {
	clock := newFakeClock()
	store := &stubProfileStore{profile: &identity.Profile{ApprovalStatus: "APPROVED", Role: "USER"}}
	resolver := newTestResolver(t, store, clock)
	ctx := context.Background()

	first := resolver.Resolve(ctx, "user_1", nil)
	clock.Advance(30 * time.Second)
	second := resolver.Resolve(ctx, "user_1", &auth.SessionClaims{})

	assert.Equal(t, enums.SnapshotSourceProfileStore, first.Source)
	assert.Equal(t, first, second, "resolution within the TTL must be identical")
	assert.EqualValues(t, 1, store.calls.Load())

	clock.Advance(31 * time.Second)
	resolver.Resolve(ctx, "user_1", nil)
	assert.EqualValues(t, 2, store.calls.Load(), "expired entry should trigger a new lookup")
}

func TestResolveEmptyProfileStatusIsPending(t *testing.T) {
	clock := newFakeClock()
	resolver := newTestResolver(t, &stubProfileStore{profile: &identity.Profile{}}, clock)

	snap := resolver.Resolve(context.Background(), "user_new", nil)
	assert.Equal(t, enums.ApprovalStatusPending, snap.ApprovalStatus)
	assert.Equal(t, enums.SnapshotSourceProfileStore, snap.Source)
}

func TestResolveFailsClosed(t *testing.T) {
	cases := map[string]*stubProfileStore{
		"error":          {err: errors.New("connection refused")},
		"not found":      {err: identity.ErrProfileNotFound},
		"nil profile":    {},
		"timeout":        {block: true, profile: &identity.Profile{ApprovalStatus: "APPROVED", Role: "ADMIN"}},
		"panic":          {panics: true},
		"unknown status": {profile: &identity.Profile{ApprovalStatus: "VIP", Role: "ADMIN"}},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			resolver := newTestResolver(t, store, clock)

			started := time.Now()
			snap := resolver.Resolve(context.Background(), "user_1", nil)

			assert.Less(t, time.Since(started), time.Second)
			assert.Equal(t, enums.ApprovalStatusPending, snap.ApprovalStatus)
			assert.False(t, snap.IsAdmin)
			assert.Equal(t, enums.SnapshotSourceDefault, snap.Source)
			assert.Zero(t, resolver.Cache().Len(), "defaults must not be cached")
		})
	}
}

func TestResolveSkipsClaimsIssuedBeforeInvalidation(t *testing.T) {
	clock := newFakeClock()
	store := &stubProfileStore{profile: &identity.Profile{ApprovalStatus: "SUSPENDED"}}
	resolver := newTestResolver(t, store, clock)
	ctx := context.Background()

	staleClaims := claimsFor("user_1", "APPROVED", "USER", clock.Now().Add(-5*time.Minute))
	resolver.Cache().Invalidate("user_1")

	snap := resolver.Resolve(ctx, "user_1", staleClaims)
	assert.Equal(t, enums.ApprovalStatusSuspended, snap.ApprovalStatus)
	assert.Equal(t, enums.SnapshotSourceProfileStore, snap.Source)

	clock.Advance(2 * time.Second)
	freshClaims := claimsFor("user_1", "SUSPENDED", "USER", clock.Now())
	snap = resolver.Resolve(ctx, "user_1", freshClaims)
	assert.Equal(t, enums.SnapshotSourceSessionClaims, snap.Source)
}

func TestResolveIgnoresClaimsForAnotherUser(t *testing.T) {
	clock := newFakeClock()
	store := &stubProfileStore{profile: &identity.Profile{ApprovalStatus: "PENDING"}}
	resolver := newTestResolver(t, store, clock)

	snap := resolver.Resolve(context.Background(), "user_1", claimsFor("user_2", "APPROVED", "ADMIN", clock.Now()))
	assert.Equal(t, enums.ApprovalStatusPending, snap.ApprovalStatus)
	assert.EqualValues(t, 1, store.calls.Load())
}

func TestResolveBlankExternalID(t *testing.T) {
	clock := newFakeClock()
	store := &stubProfileStore{}
	resolver := newTestResolver(t, store, clock)

	snap := resolver.Resolve(context.Background(), "  ", nil)
	assert.Equal(t, enums.SnapshotSourceDefault, snap.Source)
	assert.Zero(t, store.calls.Load())
}

func TestNewResolverRequiresDependencies(t *testing.T) {
	_, err := NewResolver(ResolverParams{Profiles: &stubProfileStore{}})
	assert.Error(t, err)
	_, err = NewResolver(ResolverParams{Cache: NewCache(CacheOptions{})})
	assert.Error(t, err)
}

package gate

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	snap  status.Snapshot
	calls int
}

func (s *stubResolver) Resolve(context.Context, string, *auth.SessionClaims) status.Snapshot {
	s.calls++
	return s.snap
}

func snapshot(approval enums.ApprovalStatus, role enums.UserRole) status.Snapshot {
	return status.NewSnapshot(approval, role, time.Now(), enums.SnapshotSourceSessionClaims)
}

func newTestGate(t *testing.T, resolver StatusResolver) *Gate {
	t.Helper()
	if resolver == nil {
		resolver = &stubResolver{}
	}
	g, err := New(Params{Resolver: resolver})
	require.NoError(t, err)
	return g
}

func TestEvaluateStateMachine(t *testing.T) {
	g := newTestGate(t, nil)

	cases := []struct {
		name     string
		approval enums.ApprovalStatus
		role     enums.UserRole
		path     string
		want     Verdict
	}{
		{"suspended on feature", enums.ApprovalStatusSuspended, enums.UserRoleUser, "/clientes/123", Redirect("/account-suspended")},
		{"suspended on own page", enums.ApprovalStatusSuspended, enums.UserRoleUser, "/account-suspended", Allow()},
		{"suspended on public", enums.ApprovalStatusSuspended, enums.UserRoleUser, "/sign-in", Allow()},
		{"suspended on rejected page", enums.ApprovalStatusSuspended, enums.UserRoleUser, "/account-rejected", Redirect("/account-suspended")},
		{"suspended on profile", enums.ApprovalStatusSuspended, enums.UserRoleUser, "/perfil", Redirect("/account-suspended")},

		{"rejected on feature", enums.ApprovalStatusRejected, enums.UserRoleUser, "/propostas", Redirect("/account-rejected")},
		{"rejected on own page", enums.ApprovalStatusRejected, enums.UserRoleUser, "/account-rejected", Allow()},
		{"rejected on webhook", enums.ApprovalStatusRejected, enums.UserRoleUser, "/api/webhooks/identity", Allow()},

		{"pending on feature", enums.ApprovalStatusPending, enums.UserRoleUser, "/dashboard", Redirect("/pending-approval")},
		{"pending on own page", enums.ApprovalStatusPending, enums.UserRoleUser, "/pending-approval", Allow()},
		{"pending on allow-listed", enums.ApprovalStatusPending, enums.UserRoleUser, "/perfil/editar", Allow()},
		{"pending on me api", enums.ApprovalStatusPending, enums.UserRoleUser, "/api/v1/me", Allow()},
		{"pending on admin", enums.ApprovalStatusPending, enums.UserRoleUser, "/admin/users", Redirect("/pending-approval")},
		{"pending on unknown route", enums.ApprovalStatusPending, enums.UserRoleUser, "/somewhere-new", Redirect("/pending-approval")},

		{"approved on feature", enums.ApprovalStatusApproved, enums.UserRoleUser, "/clientes/123", Allow()},
		{"approved on home", enums.ApprovalStatusApproved, enums.UserRoleUser, "/", Allow()},
		{"approved on limbo", enums.ApprovalStatusApproved, enums.UserRoleUser, "/pending-approval", Redirect("/")},
		{"approved on suspended page", enums.ApprovalStatusApproved, enums.UserRoleUser, "/account-suspended", Redirect("/")},
		{"approved non-admin on admin", enums.ApprovalStatusApproved, enums.UserRoleUser, "/admin", Redirect("/")},

		{"admin pending on admin", enums.ApprovalStatusPending, enums.UserRoleAdmin, "/admin/users", Allow()},
		{"admin pending on limbo", enums.ApprovalStatusPending, enums.UserRoleAdmin, "/pending-approval", Redirect("/")},
		{"super admin suspended on feature", enums.ApprovalStatusSuspended, enums.UserRoleSuperAdmin, "/clientes", Allow()},
		{"super admin on rejected page", enums.ApprovalStatusRejected, enums.UserRoleSuperAdmin, "/account-rejected", Redirect("/")},

		{"unknown status fails closed", enums.ApprovalStatus("ARCHIVED"), enums.UserRoleUser, "/clientes", Redirect("/pending-approval")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := g.Evaluate(tc.path, snapshot(tc.approval, tc.role))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	resolver := &stubResolver{}
	g := newTestGate(t, resolver)
	snap := snapshot(enums.ApprovalStatusPending, enums.UserRoleUser)

	first := g.Evaluate("/clientes", snap)
	second := g.Evaluate("/clientes", snap)
	assert.Equal(t, first, second)
	assert.Zero(t, resolver.calls)
}

func TestRedirectTargetsAreReachable(t *testing.T) {
	g := newTestGate(t, nil)
	for _, approval := range []enums.ApprovalStatus{
		enums.ApprovalStatusPending,
		enums.ApprovalStatusApproved,
		enums.ApprovalStatusRejected,
		enums.ApprovalStatusSuspended,
	} {
		for _, role := range []enums.UserRole{enums.UserRoleUser, enums.UserRoleAdmin} {
			snap := snapshot(approval, role)
			for _, path := range []string{"/", "/clientes", "/admin", "/pending-approval", "/account-rejected", "/account-suspended"} {
				verdict := g.Evaluate(path, snap)
				if verdict.Allowed() {
					continue
				}
				assert.True(t, g.Evaluate(verdict.Target, snap).Allowed(), "%s/%s: %s redirects to %s which is not reachable", approval, role, path, verdict.Target)
			}
		}
	}
}

func TestCheckResolvesThenEvaluates(t *testing.T) {
	resolver := &stubResolver{snap: snapshot(enums.ApprovalStatusSuspended, enums.UserRoleUser)}
	g := newTestGate(t, resolver)

	verdict, snap := g.Check(context.Background(), "/clientes/9", "user_1", nil)
	assert.Equal(t, Redirect("/account-suspended"), verdict)
	assert.Equal(t, enums.ApprovalStatusSuspended, snap.ApprovalStatus)
	assert.Equal(t, 1, resolver.calls)
}

func TestCheckAnonymous(t *testing.T) {
	resolver := &stubResolver{}
	g := newTestGate(t, resolver)

	verdict, _ := g.Check(context.Background(), "/health/live", "", nil)
	assert.True(t, verdict.Allowed())

	verdict, snap := g.Check(context.Background(), "/clientes", "", nil)
	assert.Equal(t, Redirect("/sign-in"), verdict)
	assert.Equal(t, enums.SnapshotSourceDefault, snap.Source)
	assert.Zero(t, resolver.calls)
}

func TestNewRequiresResolver(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)
}

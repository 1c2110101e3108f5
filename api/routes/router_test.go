package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice/internal/gate"
	"github.com/angelmondragon/backoffice/internal/moderation"
	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/internal/users"
	identitywebhook "github.com/angelmondragon/backoffice/internal/webhooks/identity"
	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
	"github.com/angelmondragon/backoffice/pkg/redis"
)

const usersDDL = `
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
)`

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type missingProfiles struct{}

func (missingProfiles) GetProfile(context.Context, string) (*identity.Profile, error) {
	return nil, identity.ErrProfileNotFound
}

type stubModeration struct {
	applied int
}

func (s *stubModeration) Apply(ctx context.Context, input moderation.ApplyInput) (*moderation.Result, error) {
	s.applied++
	return &moderation.Result{}, nil
}

func (s *stubModeration) History(ctx context.Context, targetUserID uuid.UUID, limit int) ([]moderation.RecordDTO, error) {
	return []moderation.RecordDTO{}, nil
}

func (s *stubModeration) Wait() {}

type harness struct {
	handler    http.Handler
	cfg        *config.Config
	moderation *stubModeration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		App:     config.AppConfig{Env: "test"},
		Session: config.SessionConfig{Secret: "secret", Issuer: "https://identity.example", ExpirationMinutes: 10, CookieName: "__session"},
		Identity: config.IdentityConfig{
			WebhookSecret: "whsec",
		},
		Moderation: config.ModerationConfig{RateLimit: 0},
	}

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.Exec(usersDDL).Error; err != nil {
		t.Fatalf("create users: %v", err)
	}
	sqlDB, _ := conn.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	redisClient, err := redis.New(ctx, config.RedisConfig{
		URL:          "redis://" + mr.Addr() + "/0",
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, logger.Nop())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	reg := prometheus.NewRegistry()
	gateMetrics := metrics.NewGateMetrics(reg)
	cache := status.NewCache(status.CacheOptions{Metrics: gateMetrics})
	resolver, err := status.NewResolver(status.ResolverParams{Cache: cache, Profiles: missingProfiles{}, Metrics: gateMetrics})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	requestGate, err := gate.New(gate.Params{Resolver: resolver, Metrics: gateMetrics})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}

	usersRepo := users.NewRepository(conn)
	webhookSvc, err := identitywebhook.NewService(identitywebhook.ServiceParams{Users: usersRepo, Cache: cache})
	if err != nil {
		t.Fatalf("webhook service: %v", err)
	}
	guard, err := identitywebhook.NewIdempotencyGuard(redisClient, time.Hour, identitywebhook.Source)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	mod := &stubModeration{}
	handler := NewRouter(cfg, logger.Nop(), stubPinger{}, redisClient, reg, metrics.NewHTTPMetrics(reg), requestGate, usersRepo, mod, webhookSvc, guard)
	return &harness{handler: handler, cfg: cfg, moderation: mod}
}

func (h *harness) token(t *testing.T, externalID, approval, role string) string {
	t.Helper()
	token, err := auth.MintSessionToken(h.cfg.Session, time.Now(), auth.SessionPayload{
		ExternalID: externalID,
		Email:      externalID + "@example.com",
		Metadata:   &auth.ProfileMetadata{ApprovalStatus: approval, Role: role},
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutesSkipSession(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := h.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}
}

func TestAnonymousCallersAreSentToSignIn(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/sign-in" {
		t.Fatalf("expected redirect to /sign-in, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous api call, got %d", rec.Code)
	}
}

func TestPendingUserConfinedToLimbo(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, "user_p", "PENDING", "USER")

	req := httptest.NewRequest(http.MethodGet, "/clientes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := h.do(req)
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/pending-approval" {
		t.Fatalf("expected redirect to /pending-approval, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	req = httptest.NewRequest(http.MethodGet, "/pending-approval", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: token})
	rec = h.do(req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"approvalStatus":"PENDING"`) {
		t.Fatalf("expected limbo page, got %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = h.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending users may read their profile, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	h := newHarness(t)
	target := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "user_a", "APPROVED", "USER"))
	rec := h.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	adminToken := h.token(t, "admin_1", "APPROVED", "ADMIN")
	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/"+target+"/moderation", strings.NewReader(`{"action":"APPROVE","expected_version":0}`))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = h.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing Idempotency-Key to fail, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/users/"+target+"/moderation", strings.NewReader(`{"action":"APPROVE","expected_version":0}`))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		req.Header.Set("Idempotency-Key", "decision-1")
		rec = h.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if h.moderation.applied != 1 {
		t.Fatalf("expected replayed request to skip the handler, applied=%d", h.moderation.applied)
	}
}

func TestIdentityWebhookIsPublic(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"id":"evt_1","type":"user.created","data":{"id":"user_w","email_addresses":[{"email_address":"w@example.com"}]}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/identity", strings.NewReader(string(body)))
	req.Header.Set("X-Identity-Signature", identitywebhook.Sign(body, h.cfg.Identity.WebhookSecret))
	rec := h.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", rec.Code, rec.Body.String())
	}
}

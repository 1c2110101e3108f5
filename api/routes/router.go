package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/backoffice/api/controllers"
	webhookcontrollers "github.com/angelmondragon/backoffice/api/controllers/webhooks"
	"github.com/angelmondragon/backoffice/api/middleware"
	"github.com/angelmondragon/backoffice/internal/gate"
	"github.com/angelmondragon/backoffice/internal/moderation"
	"github.com/angelmondragon/backoffice/internal/users"
	identitywebhook "github.com/angelmondragon/backoffice/internal/webhooks/identity"
	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
	"github.com/angelmondragon/backoffice/pkg/redis"
)

// NewRouter assembles the HTTP surface. Every request passes the session and
// approval gate before reaching a handler.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	requestGate *gate.Gate,
	usersRepo *users.Repository,
	moderationService moderation.Service,
	identityWebhookService *identitywebhook.Service,
	identityWebhookGuard *identitywebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
		middleware.SessionAuth(cfg.Session, logg),
		middleware.Gate(requestGate, logg),
	)

	moderationPolicy := middleware.NewRateLimitPolicy(
		"moderation",
		cfg.Moderation.RateLimitWindow,
		cfg.Moderation.RateLimit,
		cfg.Moderation.RateLimit,
	)

	readiness := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/identity", webhookcontrollers.IdentityWebhook(identityWebhookService, cfg.Identity.WebhookSecret, identityWebhookGuard, logg))
	})

	r.Get("/api/v1/me", controllers.Me(usersRepo, logg))

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(logg))
		r.Get("/users", controllers.AdminReviewQueue(usersRepo, logg))
		r.Get("/users/{userId}/moderation", controllers.AdminModerationHistory(moderationService, logg))
		r.Group(func(r chi.Router) {
			if redisClient != nil {
				r.Use(middleware.RateLimit(moderationPolicy, redisClient, logg))
				r.Use(middleware.Idempotency(redisClient, cfg.Moderation.IdempotencyTTL, logg))
			}
			r.Post("/users/{userId}/moderation", controllers.AdminModerate(moderationService, logg))
		})
	})

	pages := requestGate.Pages()
	for _, page := range []string{pages.Home, pages.PendingApproval, pages.AccountRejected, pages.AccountSuspended} {
		if page != "" {
			r.Get(page, controllers.StatusPage(logg))
		}
	}

	return r
}

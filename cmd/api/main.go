package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/backoffice/api/routes"
	"github.com/angelmondragon/backoffice/internal/gate"
	"github.com/angelmondragon/backoffice/internal/moderation"
	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/internal/users"
	identitywebhook "github.com/angelmondragon/backoffice/internal/webhooks/identity"
	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/db"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
	"github.com/angelmondragon/backoffice/pkg/migrate"
	"github.com/angelmondragon/backoffice/pkg/pubsub"
	"github.com/angelmondragon/backoffice/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.FromConfig("api", cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	identityClient, err := identity.NewClient(cfg.Identity)
	if err != nil {
		logg.Error(ctx, "failed to create identity client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gateMetrics := metrics.NewGateMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	cache := status.NewCache(status.CacheOptionsFromConfig(cfg.StatusCache, gateMetrics))
	resolver, err := status.NewResolver(status.ResolverParams{
		Cache:          cache,
		Profiles:       identityClient,
		ProfileTimeout: cfg.Identity.RequestTimeout,
		Logger:         logg,
		Metrics:        gateMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create status resolver", err)
		os.Exit(1)
	}
	requestGate, err := gate.New(gate.Params{Resolver: resolver, Logger: logg, Metrics: gateMetrics})
	if err != nil {
		logg.Error(ctx, "failed to create gate", err)
		os.Exit(1)
	}

	propagatorParams := moderation.PropagatorParams{
		Profiles: identityClient,
		Cache:    cache,
		Timeout:  cfg.Moderation.PropagationTimeout,
		Retry:    moderation.RetryPolicy{Attempts: cfg.Moderation.RetryAttempts},
		Logger:   logg,
		Metrics:  gateMetrics,
	}
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		events, err := pubsub.NewEventPublisher(psClient.ModerationPublisher())
		if err != nil {
			logg.Error(ctx, "failed to create moderation event publisher", err)
			os.Exit(1)
		}
		propagatorParams.Events = events
	}
	propagator, err := moderation.NewPropagator(propagatorParams)
	if err != nil {
		logg.Error(ctx, "failed to create propagator", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	moderationService, err := moderation.NewService(moderation.ServiceParams{
		Users:              usersRepo,
		Audit:              moderation.NewAuditRepository(dbClient.DB()),
		Tx:                 dbClient,
		Cache:              cache,
		Propagator:         propagator,
		InitialCreditGrant: cfg.Moderation.InitialCreditGrant,
		StoreTimeout:       cfg.Moderation.StoreTimeout,
		AwaitPropagation:   cfg.Moderation.AwaitPropagation,
		Logger:             logg,
		Metrics:            gateMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create moderation service", err)
		os.Exit(1)
	}

	webhookService, err := identitywebhook.NewService(identitywebhook.ServiceParams{Users: usersRepo, Cache: cache, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to create identity webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := identitywebhook.NewIdempotencyGuard(redisClient, cfg.Identity.WebhookDedupe, identitywebhook.Source)
	if err != nil {
		logg.Error(ctx, "failed to create identity webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, httpMetrics, requestGate, usersRepo, moderationService, webhookService, webhookGuard),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
		moderationService.Wait()
		logg.Info(logCtx, "api server stopped")
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/cache"
	"github.com/Awaisee01/fund-sub001/internal/config"
	"github.com/Awaisee01/fund-sub001/internal/database"
	"github.com/Awaisee01/fund-sub001/internal/handlers"
	"github.com/Awaisee01/fund-sub001/internal/jobs"
	"github.com/Awaisee01/fund-sub001/internal/log"
	"github.com/Awaisee01/fund-sub001/internal/notify"
	"github.com/Awaisee01/fund-sub001/internal/queue"
	"github.com/Awaisee01/fund-sub001/internal/ratelimit"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/server"
	"github.com/Awaisee01/fund-sub001/internal/service"
	"github.com/Awaisee01/fund-sub001/internal/storage"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

const (
	relayMax    = 60
	relayWindow = time.Minute
	// login and verify requests per client ip
	authMax    = 20
	authWindow = 15 * time.Minute
	// second-factor codes per admin
	codeMax    = 5
	codeWindow = 15 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var exports service.ExportStore
	objectStore, err := storage.NewObjectStore(cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		logger.Warn().Msg("object storage not configured, lead export disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to init object store")
	default:
		if err := objectStore.EnsureBuckets(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure buckets failed")
		}
		exports = objectStore
	}

	leadRepo := repository.NewLeadRepository(dbPool)
	visitorRepo := repository.NewVisitorSessionRepository(dbPool)
	adminRepo := repository.NewAdminRepository(dbPool)
	adminSessionRepo := repository.NewSessionRepository(dbPool)
	auditRepo := repository.NewAuditRepository(dbPool)

	publisher := queue.NewPublisher(redisClient, cfg.Redis.Stream)

	limits := newLimiters(cfg, redisClient, logger)

	conversions := tracking.NewConversionsClient(cfg.Tracking, &http.Client{Timeout: cfg.Tracking.RequestTimeout})
	dispatcher := tracking.NewDispatcher(
		cfg.Tracking.Enabled,
		publisher,
		tracking.NewRedisDeduper(redisClient, cfg.Tracking.DedupeTTL),
		conversions,
		logger.With().Str("component", "tracking").Logger(),
	)
	notifier := notify.NewNotifier(publisher, logger.With().Str("component", "notify").Logger())

	leadService := service.NewLeadService(leadRepo, visitorRepo, limits.form, limits.guard, dispatcher, notifier, logger)
	visitorService := service.NewVisitorSessionService(visitorRepo, cfg.Sessions.InactivityTimeout, logger)
	adminAuth := service.NewAdminAuthService(adminRepo, adminSessionRepo, auditRepo, cfg.Security, logger).
		WithCodeLimiter(limits.codes)
	adminLeads := service.NewAdminLeadService(leadRepo, auditRepo, exports, cfg.Storage.PresignTTL, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Leads:        leadService,
		Sessions:     visitorService,
		AdminAuth:    adminAuth,
		AdminLeads:   adminLeads,
		Relay:        dispatcher,
		Mailer:       notify.NewMailer(cfg.Email),
		RelayLimiter: limits.relay,
		AuthLimiter:  limits.auth,
		Nonces:       redisClient,
		Database:     dbPool.Ping,
		Cache:        func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(visitorService, adminAuth, limits.sweepers, logger.With().Str("component", "jobs").Logger())
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

type limiterSet struct {
	form     ratelimit.Limiter
	guard    ratelimit.SubmissionGuard
	relay    ratelimit.Limiter
	auth     ratelimit.Limiter
	codes    ratelimit.Limiter
	sweepers []jobs.Sweeper
}

// newLimiters picks the limiter backend. The redis backend shares budgets
// across instances and needs no sweeping.
func newLimiters(cfg *config.AppConfig, rdb *redis.Client, logger zerolog.Logger) limiterSet {
	guardOpts := ratelimit.GuardOptions{
		MinInterval:   cfg.Submission.MinInterval,
		MaxAttempts:   cfg.Submission.MaxAttempts,
		AttemptWindow: cfg.Submission.AttemptWindow,
	}

	if cfg.RateLimit.Backend == "redis" {
		logger.Info().Msg("using redis rate limiter")
		return limiterSet{
			form:  ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window),
			guard: ratelimit.NewRedisGuard(rdb, guardOpts),
			relay: ratelimit.NewRedisLimiter(rdb, relayMax, relayWindow).WithPrefix("ratelimit:relay:"),
			auth:  ratelimit.NewRedisLimiter(rdb, authMax, authWindow).WithPrefix("ratelimit:auth:"),
			codes: ratelimit.NewRedisLimiter(rdb, codeMax, codeWindow).WithPrefix("ratelimit:codes:"),
		}
	}

	form := ratelimit.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	guard := ratelimit.NewMemoryGuard(guardOpts)
	relay := ratelimit.NewMemoryLimiter(relayMax, relayWindow)
	auth := ratelimit.NewMemoryLimiter(authMax, authWindow)
	codes := ratelimit.NewMemoryLimiter(codeMax, codeWindow)
	return limiterSet{
		form:     form,
		guard:    guard,
		relay:    relay,
		auth:     auth,
		codes:    codes,
		sweepers: []jobs.Sweeper{form, guard, relay, auth, codes},
	}
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("scheduled jobs still running at shutdown")
		}
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}

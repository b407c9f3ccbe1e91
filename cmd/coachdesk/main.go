package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/agents"
	"github.com/coachdesk/coachdesk/internal/app"
	"github.com/coachdesk/coachdesk/internal/auth"
	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/dashboard"
	"github.com/coachdesk/coachdesk/internal/insights"
	"github.com/coachdesk/coachdesk/internal/notifications"
	"github.com/coachdesk/coachdesk/internal/observability"
	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/db"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/internal/roles"
	"github.com/coachdesk/coachdesk/internal/shared"
	"github.com/coachdesk/coachdesk/internal/users"
	"github.com/coachdesk/coachdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
		MaxRetries:  cfg.RedisMaxRetries,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	store := cache.NewStore(redisClient, logger).WithRecorder(metrics)
	store.Start(ctx)

	sessionManager := shared.NewSessionManager(redisClient, "coachdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.IsProduction())

	rbacService := rbac.NewService(dbpool)
	gate := rbac.NewGate(rbacService, rbacService)
	rbacMiddleware := rbac.Middleware{Gate: gate, Principals: rbacService, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	notificationsRepo := notifications.NewRepository(dbpool)
	notificationsService := notifications.NewService(logger, notificationsRepo, redisClient, jobsClient)
	notificationsHandler := notifications.NewHandler(logger, notificationsService)

	coachingRepo := coaching.NewRepository(dbpool)
	coachingService := coaching.NewService(coachingRepo, gate, rbacService, store, notificationsService)
	coachingHandler := coaching.NewHandler(logger, coachingService, rbacMiddleware)

	agentsRepo := agents.NewRepository(dbpool)
	agentsService := agents.NewService(agentsRepo, gate, rbacService, store, auditLogger)
	agentsHandler := agents.NewHandler(logger, agentsService, rbacMiddleware, coachingHandler)

	insightsProvider := insights.NewHTTPProvider(cfg.InsightsURL, cfg.InsightsAPIKey)
	insightsService := insights.NewService(logger, agentsRepo, coachingRepo, insightsProvider, gate, store)
	insightsHandler := insights.NewHandler(logger, insightsService, rbacMiddleware)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, rbacService, store)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, rbacService, auditLogger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	dashboardRepo := dashboard.NewRepository(dbpool)
	dashboardService := dashboard.NewService(dashboardRepo, rbacService, store)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		RBACMiddleware:       rbacMiddleware,
		AuthHandler:          authHandler,
		AgentsHandler:        agentsHandler,
		CoachingHandler:      coachingHandler,
		InsightsHandler:      insightsHandler,
		NotificationsHandler: notificationsHandler,
		RolesHandler:         rolesHandler,
		UsersHandler:         usersHandler,
		DashboardHandler:     dashboardHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

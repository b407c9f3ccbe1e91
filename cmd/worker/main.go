package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/coachdesk/coachdesk/internal/agents"
	"github.com/coachdesk/coachdesk/internal/app"
	"github.com/coachdesk/coachdesk/internal/coaching"
	"github.com/coachdesk/coachdesk/internal/insights"
	"github.com/coachdesk/coachdesk/internal/platform/cache"
	"github.com/coachdesk/coachdesk/internal/platform/db"
	"github.com/coachdesk/coachdesk/internal/rbac"
	"github.com/coachdesk/coachdesk/jobs"
)

// smtpSender delivers notification emails through the configured relay.
type smtpSender struct {
	addr string
	from string
}

func (s smtpSender) Send(ctx context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	store := cache.NewStore(redisClient, logger)
	store.Start(ctx)

	rbacService := rbac.NewService(pool)
	gate := rbac.NewGate(rbacService, rbacService)

	agentsRepo := agents.NewRepository(pool)
	coachingRepo := coaching.NewRepository(pool)
	provider := insights.NewHTTPProvider(cfg.InsightsURL, cfg.InsightsAPIKey)
	insightsService := insights.NewService(logger, agentsRepo, coachingRepo, provider, gate, store)

	sender := smtpSender{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from: cfg.SMTPFrom,
	}

	emailJob := jobs.NewNotificationEmailJob(pool, sender, logger, nil)
	warmupJob := jobs.NewInsightsWarmupJob(insightsService, pool, logger, nil)
	rollupJob := jobs.NewMetricsRollupJob(pool, logger, nil)

	warmupTask, err := jobs.NewInsightsWarmupTask("active")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	rollupTask, err := jobs.NewMetricsRollupTask("")
	if err != nil {
		logger.Error("build rollup task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationEmail, Handler: emailJob.Handle},
			{Type: jobs.TaskInsightsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskMetricsRollup, Handler: rollupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: rollupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

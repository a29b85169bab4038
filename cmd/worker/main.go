// Package main runs the background worker: queued retry and email jobs plus
// the periodic reconcile, retry and stuck-detection loops.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-academy/backend/config"
	"github.com/aura-academy/backend/internal/courses"
	"github.com/aura-academy/backend/internal/emaillogs"
	"github.com/aura-academy/backend/internal/monitoring"
	"github.com/aura-academy/backend/internal/notify"
	"github.com/aura-academy/backend/internal/provider"
	"github.com/aura-academy/backend/internal/realtime"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/internal/worker"
	"github.com/aura-academy/backend/pkg/database"
	"github.com/aura-academy/backend/pkg/queue"
	"github.com/aura-academy/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	remote := provider.NewClient(provider.Config{
		BaseURL:   cfg.Stream.BaseURL,
		AccountID: cfg.Stream.AccountID,
		APIToken:  cfg.Stream.APIToken,
		Timeout:   cfg.Stream.Timeout,
	}, nil, logger)
	courseRepo := courses.NewRepository(pool)
	videoSvc := videos.NewService(videos.NewRepository(pool), courseRepo, remote,
		videos.NewRedisCache(rdb.Client), videos.CacheConfig{TTL: cfg.Video.CacheTTL}, logger)
	videoSvc.SetEventPublisher(realtime.NewRedisPubSub(rdb.Client, logger))

	clock := monitoring.SystemClock{}
	reconciler := monitoring.NewReconciler(videoSvc, remote, clock, cfg.Video.ItemDelay, logger)
	orchestrator := monitoring.NewOrchestrator(videoSvc, remote,
		monitoring.NewRedisAttemptStore(rdb.Client, cfg.Video.AttemptTTL),
		notify.NewQueueNotifier(jobQueue, cfg.Email.AlertRecipients, logger),
		courseRepo, clock,
		monitoring.OrchestratorOptions{
			Retry: monitoring.RetryConfig{
				MaxRetries:   cfg.Video.MaxRetries,
				InitialDelay: cfg.Video.RetryInitialDelay,
				MaxDelay:     cfg.Video.RetryMaxDelay,
				Multiplier:   cfg.Video.RetryMultiplier,
			},
			ItemDelay:    cfg.Video.ItemDelay,
			AdminBaseURL: cfg.Video.AdminBaseURL,
		}, logger)
	videoSvc.OnLeaveError(orchestrator.Forget)
	detector := monitoring.NewStuckDetector(videoSvc, clock, logger)

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		User:     cfg.Email.SMTPUser,
		Pass:     cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	}, logger)
	processor := worker.NewProcessor(orchestrator, mailer, emaillogs.NewRepository(pool), jobQueue, logger)
	scheduler := monitoring.NewScheduler(reconciler, orchestrator, detector, monitoring.SchedulerConfig{
		ReconcileInterval:     cfg.Video.ReconcileInterval,
		RetryInterval:         cfg.Video.RetryInterval,
		StuckInterval:         cfg.Video.StuckInterval,
		StuckThresholdMinutes: cfg.Video.StuckThresholdMinutes,
	}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

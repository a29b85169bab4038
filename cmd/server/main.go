// Package main runs the course video HTTP API with live status WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-academy/backend/config"
	"github.com/aura-academy/backend/internal/auth"
	"github.com/aura-academy/backend/internal/courses"
	"github.com/aura-academy/backend/internal/emaillogs"
	"github.com/aura-academy/backend/internal/middleware"
	"github.com/aura-academy/backend/internal/monitoring"
	"github.com/aura-academy/backend/internal/notify"
	"github.com/aura-academy/backend/internal/provider"
	"github.com/aura-academy/backend/internal/realtime"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/database"
	"github.com/aura-academy/backend/pkg/queue"
	"github.com/aura-academy/backend/pkg/redis"
	"github.com/aura-academy/backend/pkg/response"
	"github.com/aura-academy/backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Source staging is optional; without a bucket the upload and import endpoints answer 503.
	var sources videos.SourceStorage
	if cfg.AWS.SourceBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			SourceBucket:         cfg.AWS.SourceBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			sources = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub)

	// Videos
	remote := provider.NewClient(provider.Config{
		BaseURL:   cfg.Stream.BaseURL,
		AccountID: cfg.Stream.AccountID,
		APIToken:  cfg.Stream.APIToken,
		Timeout:   cfg.Stream.Timeout,
	}, nil, logger)
	courseRepo := courses.NewRepository(pool)
	videoSvc := videos.NewService(videos.NewRepository(pool), courseRepo, remote,
		videos.NewRedisCache(rdb.Client), videos.CacheConfig{TTL: cfg.Video.CacheTTL}, logger)
	videoSvc.SetEventPublisher(pubsub)
	videoHandler := videos.NewHandler(videoSvc, remote, sources, logger)

	// Processing engine
	clock := monitoring.SystemClock{}
	reconciler := monitoring.NewReconciler(videoSvc, remote, clock, cfg.Video.ItemDelay, logger)
	orchestrator := monitoring.NewOrchestrator(videoSvc, remote,
		monitoring.NewRedisAttemptStore(rdb.Client, cfg.Video.AttemptTTL),
		notify.NewQueueNotifier(jobQueue, cfg.Email.AlertRecipients, logger),
		courseRepo, clock,
		monitoring.OrchestratorOptions{
			Retry:        retryConfig(cfg.Video),
			ItemDelay:    cfg.Video.ItemDelay,
			AdminBaseURL: cfg.Video.AdminBaseURL,
		}, logger)
	videoSvc.OnLeaveError(orchestrator.Forget)
	detector := monitoring.NewStuckDetector(videoSvc, clock, logger)
	monitoringHandler := monitoring.NewHandler(videoSvc, reconciler, orchestrator, detector, jobQueue, logger)
	webhookHandler := monitoring.NewWebhookHandler(videoSvc, reconciler, cfg.Stream.WebhookSecret, logger)
	if cfg.Stream.WebhookSecret == "" {
		logger.Warn("stream webhook signature checks disabled")
	}

	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Check(ctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Public course catalogue (ready videos only)
	router.GET("/courses/:id/videos", videoHandler.ListPublic)

	// Webhooks (no JWT; signature checked in handler when a secret is configured)
	router.POST("/webhooks/stream", webhookHandler.StreamEvent)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws/courses/:id/videos", realtime.ServeWs(hub, logger, jwtService.ValidateSubject))

	// Admin CMS (JWT + admin role)
	admin := router.Group("/admin")
	admin.Use(middleware.JWT(jwtService), middleware.RequireAdmin())
	{
		admin.POST("/courses/:id/videos", videoHandler.Create)
		admin.GET("/courses/:id/videos", videoHandler.ListAdmin)
		admin.POST("/courses/:id/videos/upload-url", videoHandler.UploadURL)
		admin.POST("/courses/:id/videos/source", videoHandler.UploadSource)
		admin.POST("/courses/:id/videos/import", videoHandler.Import)
		admin.GET("/courses/:id/lessons/:lesson/video", videoHandler.GetByLesson)

		admin.POST("/videos/reconcile", monitoringHandler.ReconcileAll)
		admin.POST("/videos/retry-all", monitoringHandler.RetryAll)
		admin.GET("/videos/stuck", monitoringHandler.Stuck)

		admin.GET("/videos/:id", videoHandler.Get)
		admin.PATCH("/videos/:id", videoHandler.Update)
		admin.DELETE("/videos/:id", videoHandler.Delete)
		admin.POST("/videos/:id/reconcile", monitoringHandler.Reconcile)
		admin.POST("/videos/:id/retry", monitoringHandler.Retry)
		admin.GET("/videos/:id/retry-attempts", monitoringHandler.Attempts)
		admin.DELETE("/videos/:id/retry-attempts", monitoringHandler.ResetAttempts)
		admin.GET("/videos/:id/emails", emailLogsHandler.ListByVideo)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func retryConfig(v config.VideoConfig) monitoring.RetryConfig {
	return monitoring.RetryConfig{
		MaxRetries:   v.MaxRetries,
		InitialDelay: v.RetryInitialDelay,
		MaxDelay:     v.RetryMaxDelay,
		Multiplier:   v.RetryMultiplier,
	}.WithDefaults()
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

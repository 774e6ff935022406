package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	challengeController "codequest/internal/challenge/controller"
	challengeRepo "codequest/internal/challenge/repository"
	challengeService "codequest/internal/challenge/service"
	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	commonmw "codequest/internal/common/http/middleware"
	"codequest/internal/common/mq"
	"codequest/internal/submission/controller"
	submissionRepo "codequest/internal/submission/repository"
	"codequest/internal/submission/service"
	"codequest/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/challenge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCache(appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	// Connect declares the job and verdict topics and starts the
	// reconnect supervisor. A broker outage here is not fatal: the
	// supervisor keeps retrying and publishes fail fast until the
	// broker returns.
	if err := mqClient.Connect(context.Background()); err != nil {
		logger.Warn(context.Background(), "kafka not reachable at startup, supervisor will retry", zap.Error(err))
	}

	chRepo := challengeRepo.NewChallengeRepositoryWithTTL(mysqlDB, redisCache,
		appCfg.Submit.ChallengeCacheTTL, appCfg.Submit.ChallengeEmptyTTL)
	subRepo := submissionRepo.NewSubmissionRepositoryWithTTL(mysqlDB, redisCache,
		appCfg.Submit.SubmissionCacheTTL, appCfg.Submit.SubmissionEmptyTTL)

	submitService, err := service.NewSubmitService(service.Config{
		SubmissionRepo: subRepo,
		ChallengeRepo:  chRepo,
		MQ:             mqClient,
		Cache:          redisCache,
		JobTopic:       appCfg.Topics.Jobs,
		MaxCodeBytes:   appCfg.Submit.MaxCodeBytes,
		IdempotencyTTL: appCfg.Submit.IdempotencyTTL,
		Timeouts:       appCfg.Submit.Timeouts,
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	chService, err := challengeService.NewChallengeService(chRepo, appCfg.Submit.Timeouts.DB)
	if err != nil {
		logger.Error(context.Background(), "init challenge service failed", zap.Error(err))
		return
	}

	verdictConsumer, err := service.NewVerdictConsumer(subRepo, appCfg.Submit.Timeouts.DB)
	if err != nil {
		logger.Error(context.Background(), "init verdict consumer failed", zap.Error(err))
		return
	}

	consumerOpts := appCfg.Consumer.toSubscribeOptions()
	consumerOpts.SetDefaults()
	if err := mqClient.SubscribeWithOptions(context.Background(), appCfg.Topics.Verdicts, verdictConsumer.Handler(), &consumerOpts); err != nil {
		logger.Error(context.Background(), "subscribe verdict topic failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, submitService, chService, mysqlDB, redisCache, mqClient)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "challenge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

func buildHTTPServer(
	cfg ServerConfig,
	submitService *service.SubmitService,
	chService *challengeService.ChallengeService,
	database db.Database,
	redisCache cache.Cache,
	mqClient *mq.KafkaQueue,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/health", healthHandler(database, redisCache, mqClient))

	api := router.Group("/api/v1")
	submissionCtl := controller.NewSubmissionController(submitService)
	challengeCtl := challengeController.NewChallengeController(chService)

	api.GET("/challenges", challengeCtl.List)
	api.GET("/challenges/:id", challengeCtl.Get)
	api.POST("/challenges/:id/submissions", submissionCtl.Create)
	api.GET("/challenges/:id/submissions", submissionCtl.List)
	api.GET("/submissions/:id", submissionCtl.Get)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(database db.Database, redisCache cache.Cache, mqClient *mq.KafkaQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"database": "ok", "cache": "ok", "broker": "ok"}
		if err := database.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redisCache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		// A broker outage degrades submissions but reads still work,
		// so it is reported without failing the whole check.
		if !mqClient.Connected() {
			checks["broker"] = "disconnected"
		}
		c.JSON(status, checks)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/ringgazer/internal/api/handlers"
	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/config"
	"github.com/langchou/ringgazer/internal/credential"
	"github.com/langchou/ringgazer/internal/repository"
	"github.com/langchou/ringgazer/internal/service"
	"github.com/langchou/ringgazer/internal/storage"
	"github.com/langchou/ringgazer/internal/supervisor"
	"github.com/langchou/ringgazer/internal/webhook"
	"github.com/langchou/ringgazer/pkg/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return 1
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Ringgazer", zap.String("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 创建 Ring API 客户端
	opts := ring.DefaultOptions(cfg.RingRefreshToken)
	opts.SystemID = cfg.RingSystemID
	opts.Debug = cfg.RingDebug
	opts.AuthHost = cfg.RingAuthHost
	opts.APIHost = cfg.RingAPIHost
	opts.AppHost = cfg.RingAppHost
	opts.SnapsHost = cfg.RingSnapsHost
	ringClient := ring.NewClient(logger, opts)

	// 快照上传
	uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
		Region:          cfg.AWSRegion,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Endpoint:        cfg.S3Endpoint,
	})
	if err != nil {
		logger.Error("Failed to create S3 uploader", zap.Error(err))
		return 1
	}

	keys := storage.NewKeyTable(cfg.SnapshotKeys, cfg.SnapshotDefaultKey)
	router := service.NewRouter(logger, ringClient, uploader, webhook.NewSender(cfg.WebhookURL, cfg.WebhookTimeout), keys)

	ringService := service.NewRingService(
		cfg,
		logger,
		ringClient,
		credential.NewStore(cfg.EnvFile),
		router,
		keys,
	)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(ringService.InitData)
	ringService.SetBroadcaster(wsHub)

	handler := handlers.NewHandler(logger, ringService, wsHub)

	// 事件历史（可选）
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to connect database", zap.Error(err))
			return 1
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate database", zap.Error(err))
			return 1
		}
		logger.Info("Database migrated successfully")

		notifRepo := repository.NewNotificationRepository(db)
		connRepo := repository.NewConnectivityRepository(db)
		ringService.SetRecorders(notifRepo, connRepo)
		handler.SetHistory(notifRepo, connRepo)
	}

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	handler.RegisterRoutes(engine)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: engine,
	}

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	tree.AddRingService(ringService)
	tree.AddAPIService(wsHub)
	tree.AddAPIService(supervisor.NewHTTPService(server, 0))

	logger.Info("Server started", zap.String("addr", server.Addr))

	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logger.Warn("Service did not stop in time", zap.String("service", svc.Name))
		}
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("Server exited")
		return 0
	case errors.Is(err, suture.ErrTerminateSupervisorTree):
		logger.Error("Ring authentication failed, exiting", zap.Error(err))
		return 1
	default:
		logger.Error("Supervisor stopped", zap.Error(err))
		return 1
	}
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

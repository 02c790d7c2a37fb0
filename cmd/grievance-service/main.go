package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safevoice/internal/common/cache"
	"safevoice/internal/common/db"
	commonmw "safevoice/internal/common/http/middleware"
	"safevoice/internal/common/mq"
	"safevoice/internal/common/storage"
	"safevoice/internal/grievance/controller"
	"safevoice/internal/grievance/middleware"
	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/repository"
	"safevoice/internal/grievance/service"
	"safevoice/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/grievance_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Fatal(context.Background(), "grievance service exited", zap.Error(err))
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()
	pingers := make(map[string]controller.Pinger)

	repos, closeRepos, err := buildRepositories(ctx, appCfg)
	if err != nil {
		return err
	}
	defer closeRepos()
	pingers["database"] = repos.Tx.(controller.Pinger)

	objStorage, err := buildObjectStorage(ctx, appCfg)
	if err != nil {
		return err
	}

	// Revocation and rate limiting need Redis; both are off without it.
	var basicCache cache.BasicOps
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
		basicCache = redisCache
		pingers["redis"] = redisCache
	} else {
		logger.Warn(ctx, "redis not configured, token revocation and submit rate limit disabled")
	}

	var mqClient *mq.KafkaQueue
	if appCfg.Events.IsEnabled(appCfg.Kafka) {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = mqClient.Close()
		}()
		pingers["kafka"] = mqClient
	}

	attachments := service.NewAttachmentStore(objStorage, service.AttachmentStoreOptions{
		Bucket:            appCfg.MinIO.Bucket,
		KeyPrefix:         appCfg.Attachments.KeyPrefix,
		PublicBaseURL:     appCfg.Attachments.PublicBaseURL,
		MaxTotalBytes:     appCfg.Attachments.MaxTotalBytes,
		UploadConcurrency: appCfg.Attachments.UploadConcurrency,
		OpTimeout:         appCfg.Attachments.OpTimeout,
		DeleteMaxElapsed:  appCfg.Attachments.DeleteMaxElapsed,
	})

	var events *service.EventPublisher
	if mqClient != nil {
		events = service.NewEventPublisher(mqClient, appCfg.Events.Topic)
	}

	var limiter *service.RateLimiter
	if basicCache != nil {
		limiter = service.NewRateLimiter(basicCache, appCfg.RateLimit.SubmitMax, appCfg.RateLimit.Window, appCfg.RateLimit.RedisTimeout)
	}

	lifecycle := service.NewLifecycleService(repos, attachments, events, limiter, service.LifecycleOptions{
		Categories: appCfg.Issues.Categories,
	})
	authService := service.NewAuthService(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer, basicCache, appCfg.Auth.CacheTimeout)

	if mqClient != nil && appCfg.Events.Cleanup {
		cleanupConsumer := service.NewCleanupConsumer(mqClient, repos.Issues, objStorage, service.CleanupOptions{
			Bucket:        appCfg.MinIO.Bucket,
			KeyPrefix:     appCfg.Attachments.KeyPrefix,
			BatchSize:     appCfg.Events.BatchSize,
			ListTimeout:   appCfg.Events.ListTimeout,
			DeleteTimeout: appCfg.Events.DeleteTimeout,
		})
		if err := cleanupConsumer.Subscribe(ctx, appCfg.Events.Topic, appCfg.Events.ConsumerGroup, appCfg.Events.toSubscribeOptions()); err != nil {
			return fmt.Errorf("subscribe lifecycle events failed: %w", err)
		}
	}

	httpServer := buildHTTPServer(appCfg, lifecycle, authService, pingers)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grievance http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
	return serveErr
}

func buildRepositories(ctx context.Context, appCfg *AppConfig) (service.Repositories, func(), error) {
	if appCfg.Store.Database == driverMemory {
		store := repository.NewMemoryStore()
		seedMemoryStore(store, appCfg.Seed)
		logger.Warn(ctx, "using in-memory store, data is lost on restart")
		return service.Repositories{
			Tx:          store,
			Issues:      store.Issues(),
			Assignments: store.Assignments(),
			Solutions:   store.Solutions(),
			StatusLog:   store.StatusLog(),
			Attachments: store.Attachments(),
			Directory:   store.Directory(),
		}, func() {}, nil
	}

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return service.Repositories{}, nil, fmt.Errorf("init database failed: %w", err)
	}
	if appCfg.Database.Migrate {
		version, err := db.Migrate(mysqlDB)
		if err != nil {
			_ = mysqlDB.Close()
			return service.Repositories{}, nil, err
		}
		logger.Info(ctx, "database schema ready", zap.Uint("version", version))
	}
	repos := service.Repositories{
		Tx:          mysqlDB,
		Issues:      repository.NewIssueRepository(mysqlDB),
		Assignments: repository.NewAssignmentRepository(mysqlDB),
		Solutions:   repository.NewSolutionRepository(mysqlDB),
		StatusLog:   repository.NewStatusLogRepository(mysqlDB),
		Attachments: repository.NewAttachmentRepository(mysqlDB),
		Directory:   repository.NewDirectory(mysqlDB),
	}
	return repos, func() {
		_ = mysqlDB.Close()
	}, nil
}

func seedMemoryStore(store *repository.MemoryStore, seed SeedConfig) {
	for _, r := range seed.Reporters {
		store.AddReporter(r.ID, r.Name)
	}
	for _, a := range seed.Admins {
		store.AddAdmin(a.ID, a.Name)
	}
	for _, r := range seed.Resolvers {
		store.AddResolver(model.Resolver{ID: r.ID, Name: r.Name, Designation: r.Designation})
	}
}

func buildObjectStorage(ctx context.Context, appCfg *AppConfig) (storage.ObjectStorage, error) {
	if appCfg.Store.Objects == driverMemory {
		return storage.NewMemoryStorage(), nil
	}
	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("init minio failed: %w", err)
	}
	if appCfg.MinIO.CreateBucket {
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := objStorage.EnsureBucket(ensureCtx, appCfg.MinIO.Bucket, appCfg.MinIO.Region); err != nil {
			return nil, err
		}
	}
	return objStorage, nil
}

func buildHTTPServer(appCfg *AppConfig, lifecycle *service.LifecycleService, authService *service.AuthService, pingers map[string]controller.Pinger) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(appCfg.Server.CORS))
	router.Use(commonmw.MetricsMiddleware())
	router.Use(requestLogger())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	controller.NewHealthController(pingers, 2*time.Second).Register(router)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	controller.NewIssueController(lifecycle, appCfg.Attachments.MaxRequestBytes).Register(api)
	controller.NewDashboardController(lifecycle).Register(api)
	controller.NewSessionController(authService).Register(api)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      gzhttp.GzipHandler(router),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
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

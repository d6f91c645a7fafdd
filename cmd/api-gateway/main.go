package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-optimizer/api/swagger"
	"github.com/noah-isme/course-optimizer/internal/csvio"
	"github.com/noah-isme/course-optimizer/internal/handler"
	"github.com/noah-isme/course-optimizer/internal/middleware"
	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/optimizer"
	"github.com/noah-isme/course-optimizer/internal/repository"
	"github.com/noah-isme/course-optimizer/internal/service"
	"github.com/noah-isme/course-optimizer/pkg/cache"
	"github.com/noah-isme/course-optimizer/pkg/config"
	"github.com/noah-isme/course-optimizer/pkg/database"
	"github.com/noah-isme/course-optimizer/pkg/jobs"
	"github.com/noah-isme/course-optimizer/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-optimizer/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-optimizer/pkg/middleware/requestid"
	"github.com/noah-isme/course-optimizer/pkg/storage"
)

// @title Course Optimizer API
// @version 0.1.0
// @description Schedules pending course requests into rooms, instructors and dates
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const exportCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, run progress will not be cached", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	statusCache := repository.NewCacheRepository(redisClient, logr,
		repository.WithCachePrefix(cfg.Redis.KeyPrefix),
		repository.WithWriteObserver(metrics.ObserveCacheWrite),
	)

	catalogRepo := repository.NewCatalogRepository(db)
	commitmentRepo := repository.NewCommitmentRepository(db)
	inputRepo := repository.NewOptimizerInputRepository(db)
	resultRepo := repository.NewOptimizerResultRepository(db)
	runRepo := repository.NewOptimizerRunRepository(db)

	providers := map[string]service.DataProvider{
		service.SourceDB: service.NewSQLDataProvider(catalogRepo, commitmentRepo, inputRepo, metrics, logr),
	}
	if cfg.Optimizer.DataDir != "" {
		providers[service.SourceCSV] = csvio.NewProvider(cfg.Optimizer.DataDir, ',', logr)
	}

	exportStore, err := storage.NewReportStore(cfg.Exports.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export directory", zap.Error(err))
	}
	signer := storage.NewDownloadSigner(cfg.Exports.SigningSecret, cfg.Exports.URLTTL)
	exporter := service.NewExportService(exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.URLTTL,
	}, logr, nil, nil)

	runner := service.NewRunner(metrics, statusCache, service.RunnerConfig{
		StatusInterval: cfg.Optimizer.StatusInterval,
		StatusTTL:      cfg.Optimizer.StatusTTL,
	}, logr)

	var optimizerSvc *service.OptimizerService
	queue := jobs.NewQueue("optimizer", func(ctx context.Context, job jobs.Job) error {
		return optimizerSvc.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Optimizer.Workers,
		MaxRetries: cfg.Optimizer.Retries,
		RetryDelay: 30 * time.Second,
		Logger:     logr,
	})

	optimizerSvc = service.NewOptimizerService(service.OptimizerServiceDeps{
		Runs:      runRepo,
		Results:   resultRepo,
		Locations: catalogRepo,
		Providers: providers,
		Sink:      service.NewSQLResultSink(resultRepo, metrics),
		Runner:    runner,
		Queue:     queue,
		Exporter:  exporter,
		Cache:     statusCache,
		Metrics:   metrics,
		Logger:    logr,
	}, service.OptimizerServiceConfig{
		Defaults: optimizer.Options{
			SeedWithGreedy: cfg.Optimizer.SeedWithGreedy,
			Timeout:        cfg.Optimizer.Timeout,
			ShowSetup:      cfg.Optimizer.ShowSetup,
		},
		InstructorRole:  cfg.Optimizer.InstructorRole,
		MaxRetries:      cfg.Optimizer.Retries,
		CleanupInterval: exportCleanupInterval,
		ExportTTL:       cfg.Exports.URLTTL,
	})

	if err := metrics.WatchQueue(queue.Name(), queue.Stats); err != nil {
		logr.Warn("queue metrics unavailable", zap.Error(err))
	}
	queue.Start(ctx)
	defer queue.Stop()
	optimizerSvc.RecoverPendingJobs(ctx)
	optimizerSvc.StartCleanup(ctx)

	tokens := service.NewTokenValidator(service.TokenValidatorConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	optimizerHandler := handler.NewOptimizerHandler(optimizerSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	optimizerGroup := api.Group("/optimizer")
	optimizerGroup.GET("/exports/:token", optimizerHandler.DownloadExport)

	runs := optimizerGroup.Group("/runs", middleware.JWT(tokens))
	readers := middleware.RequireRoles(models.RoleAdmin, models.RolePlanner, models.RoleViewer)
	writers := middleware.RequireRoles(models.RoleAdmin, models.RolePlanner)
	runs.POST("", writers, optimizerHandler.StartRun)
	runs.GET("", readers, optimizerHandler.ListRuns)
	runs.GET("/:id", readers, optimizerHandler.GetRun)
	runs.GET("/:id/status", readers, optimizerHandler.RunStatus)
	runs.GET("/:id/results", readers, optimizerHandler.RunResults)
	runs.POST("/:id/export", writers, optimizerHandler.ExportRun)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
}
